package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ByLCY/introcard/binding"
	"github.com/ByLCY/introcard/card"
	"github.com/ByLCY/introcard/config"
	"github.com/ByLCY/introcard/editor"
	"github.com/ByLCY/introcard/layout"
	"github.com/ByLCY/introcard/persist"
	canvasrenderer "github.com/ByLCY/introcard/renderer/canvas"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// session 是一次命令执行期间打开的编辑器及其资源。
type session struct {
	cfg    config.Config
	logger *charmLog.Logger
	editor *editor.Editor
	closer func() error
}

type globalFlags struct {
	configPath string
	dbPath     string
	backend    string
	logLevel   string
}

// run 解析命令行并执行命令，便于测试时注入参数与输出。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	var (
		flags globalFlags
		s     *session
	)
	open := func(cmd *cobra.Command, _ []string) error {
		var err error
		s, err = openSession(cmd.Context(), flags, stderr)
		return err
	}
	closeSession := func(*cobra.Command, []string) error {
		if s == nil {
			return nil
		}
		err := s.close()
		s = nil
		return err
	}

	root := &cobra.Command{
		Use:           "introcard",
		Short:         "自我介绍卡片编辑器",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config TOML")
	pf.StringVar(&flags.dbPath, "db", "", "path to the state store (sqlite db or JSON file)")
	pf.StringVar(&flags.backend, "backend", "", "state store backend: sqlite, file or memory")
	pf.StringVar(&flags.logLevel, "log-level", "", "override logging level")

	withSession := func(cmd *cobra.Command) *cobra.Command {
		cmd.PreRunE = open
		cmd.PostRunE = closeSession
		return cmd
	}
	cur := func() *session { return s }

	root.AddCommand(
		withSession(newShowCmd(cur)),
		withSession(newAddCmd(cur)),
		withSession(newRemoveCmd(cur)),
		withSession(newMoveCmd(cur)),
		withSession(newEditCmd(cur)),
		withSession(newSetCmd(cur)),
		withSession(newExportCmd(cur)),
		withSession(newImportCmd(cur)),
		withSession(newLayoutCmd(cur)),
		withSession(newRenderCmd(cur)),
	)

	err := root.ExecuteContext(ctx)
	if s != nil {
		// 命令失败时 PostRunE 不会执行，这里兜底写入待保存的修改。
		if closeErr := s.close(); err == nil {
			err = closeErr
		}
	}
	return err
}

func openSession(ctx context.Context, flags globalFlags, stderr io.Writer) (*session, error) {
	configPath := strings.TrimSpace(flags.configPath)
	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv("INTROCARD_CONFIG"))
	}
	dbPath := strings.TrimSpace(flags.dbPath)
	if dbPath == "" {
		dbPath = strings.TrimSpace(os.Getenv("INTROCARD_DB_PATH"))
	}
	dbOverridden := dbPath != ""
	if !dbOverridden {
		dbPath = defaultDBPath()
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Storage.Path = dbPath
	}
	if flags.backend != "" {
		cfg.Storage.Backend = config.StorageBackend(strings.ToLower(flags.backend))
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(stderr, cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", "config_path", configPath, "backend", cfg.Storage.Backend, "path", cfg.Storage.Path)

	slot, closer, err := openSlot(cfg.Storage)
	if err != nil {
		logger.Error("open state store failed", "backend", cfg.Storage.Backend, "err", err)
		return nil, err
	}

	fontRes := map[string]canvasrenderer.Resource{}
	for _, f := range cfg.Fonts {
		fontRes[f.Family] = canvasrenderer.Resource{Path: f.Regular}
		if f.Bold != "" {
			fontRes[f.Family+"-bold"] = canvasrenderer.Resource{Path: f.Bold}
		}
	}
	r := canvasrenderer.NewRendererWithOptions(canvasrenderer.Options{
		BaseDir: cfg.Export.Assets,
		Scale:   cfg.Export.Scale,
		Fonts:   fontRes,
	})
	for _, err := range r.LoadErrors() {
		logger.Warn("font not loaded", "err", err)
	}
	families := make([]string, 0, len(cfg.Fonts))
	for _, f := range cfg.Fonts {
		if r.HasFont(f.Family) {
			families = append(families, f.Family)
		}
	}

	ed, err := editor.New(editor.Options{
		Typesetter:    r,
		Renderer:      r,
		Slot:          slot,
		AutosaveDelay: cfg.AutosaveDelay(),
		Gap:           cfg.Layout.Gap,
		ViewportWidth: cfg.Layout.ViewportWidth,
		Fonts:         families,
		Logger:        logger,
	})
	if err != nil {
		_ = closer()
		return nil, err
	}
	if err := ed.Load(ctx); err != nil {
		_ = closer()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, editor: ed, closer: closer}, nil
}

func (s *session) close() error {
	err := s.editor.Close()
	if closeErr := s.closer(); closeErr != nil {
		s.logger.Warn("close state store failed", "err", closeErr)
		err = errors.Join(err, closeErr)
	}
	return err
}

func newLogger(w io.Writer, cfg config.LoggingConfig) (*charmLog.Logger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	return charmLog.NewWithOptions(w, charmLog.Options{
		Level:           level,
		Prefix:          "introcard",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	}), nil
}

func openSlot(cfg config.StorageConfig) (persist.Slot, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.StorageMemory:
		return persist.NewMemorySlot(nil), noop, nil
	case config.StorageFile:
		slot, err := persist.NewFileSlot(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return slot, noop, nil
	default:
		store, err := persist.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store.Slot(cfg.Key), store.Close, nil
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "introcard.db"
	}
	return filepath.Join(dir, "introcard", "introcard.db")
}

func newShowCmd(s func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "显示当前的设置与卡片",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ed := s().editor
			out := cmd.OutOrStdout()
			info := ed.Settings().PersonalInfo
			g := ed.Settings().GlobalCardStyles
			fmt.Fprintf(out, "nickname: %s\nbio: %s\n", info.Nickname, info.Bio)
			fmt.Fprintf(out, "cards: color=%s text=%s opacity=%g shadow=%t align=%s line-height=%g font=%s/%g\n",
				g.Color, g.TextColor, g.Opacity, g.Shadow, g.TextAlign, g.LineHeight, g.FontFamily, g.FontSize)
			for _, col := range []card.Column{card.ColumnSingle, card.ColumnDual} {
				for _, c := range ed.Cards(col) {
					fmt.Fprintf(out, "#%d %s %q align=%s\n", c.ID, c.Column, c.Title, c.TextAlign)
				}
			}
			return nil
		},
	}
}

func newAddCmd(s func() *session) *cobra.Command {
	var title, content string
	cmd := &cobra.Command{
		Use:   "add <single|dual>",
		Short: "添加卡片",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, ok := card.ParseColumn(args[0])
			if !ok {
				return fmt.Errorf("unknown column %q", args[0])
			}
			ed := s().editor
			c, err := ed.AddCard(col)
			if err != nil {
				return err
			}
			if title != "" {
				if err := ed.EditTitle(c.ID, binding.SideControl, title); err != nil {
					return err
				}
			}
			if content != "" {
				if err := ed.EditContent(c.ID, binding.SideControl, content); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added card #%d\n", c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "card title")
	cmd.Flags().StringVar(&content, "content", "", "card content")
	return cmd
}

func newRemoveCmd(s func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "删除卡片",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return s().editor.DeleteCard(id)
		},
	}
}

func newMoveCmd(s func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <id> <index>",
		Short: "在容器内移动卡片",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			return s().editor.MoveCard(id, index)
		},
	}
}

func newEditCmd(s func() *session) *cobra.Command {
	var (
		title, content, color, textColor string
		align, background, bgMode        string
		overlayColor                     string
		opacity, overlayOpacity          float64
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "修改卡片内容与样式",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ed := s().editor
			changed := cmd.Flags().Changed
			steps := []struct {
				flag  string
				apply func() error
			}{
				{"title", func() error { return ed.EditTitle(id, binding.SideControl, title) }},
				{"content", func() error { return ed.EditContent(id, binding.SideControl, content) }},
				{"color", func() error { return ed.SetCardColor(id, color) }},
				{"text-color", func() error { return ed.SetCardTextColor(id, textColor) }},
				{"opacity", func() error { return ed.SetCardOpacity(id, opacity) }},
				{"align", func() error { return ed.SetCardAlign(id, align) }},
				{"background", func() error { return ed.SetCardBackground(id, background) }},
				{"bg-mode", func() error { return ed.SetCardBackgroundMode(id, bgMode) }},
			}
			for _, st := range steps {
				if !changed(st.flag) {
					continue
				}
				if err := st.apply(); err != nil {
					return fmt.Errorf("--%s: %w", st.flag, err)
				}
			}
			if changed("overlay-color") || changed("overlay-opacity") {
				c, ok := ed.Card(id)
				if !ok {
					return fmt.Errorf("%w: %d", card.ErrCardNotFound, id)
				}
				if !changed("overlay-color") {
					overlayColor = c.OverlayColor
				}
				if !changed("overlay-opacity") {
					overlayOpacity = c.OverlayOpacity
				}
				if err := ed.SetCardOverlay(id, overlayColor, overlayOpacity); err != nil {
					return err
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "card title")
	f.StringVar(&content, "content", "", "card content")
	f.StringVar(&color, "color", "", "background color #rrggbb")
	f.StringVar(&textColor, "text-color", "", "text color #rrggbb")
	f.Float64Var(&opacity, "opacity", 0.9, "background opacity 0.1-1")
	f.StringVar(&align, "align", "", "default, left or center")
	f.StringVar(&background, "background", "", "background image path, url(...) or none")
	f.StringVar(&bgMode, "bg-mode", "", "cover, stretch or tile")
	f.StringVar(&overlayColor, "overlay-color", "", "overlay color #rrggbb")
	f.Float64Var(&overlayOpacity, "overlay-opacity", 0, "overlay opacity 0-1")
	return cmd
}

func newSetCmd(s func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "修改页面设置",
		Long: "keys: nickname, bio, background, bg-option, overlay-color, overlay-opacity, header-color,\n" +
			"header-opacity, header-text-color, page-bg, color, text-color, opacity, shadow, align,\n" +
			"line-height, font, font-size",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applySetting(s().editor, args[0], args[1])
		},
	}
}

func applySetting(ed *editor.Editor, key, value string) error {
	number := func() (float64, error) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid number %q", key, value)
		}
		return v, nil
	}
	switch key {
	case "nickname":
		ed.SetNickname(binding.SideControl, value)
	case "bio":
		ed.SetBio(binding.SideControl, value)
	case "background":
		ed.SetBackgroundImage(value)
	case "bg-option":
		return ed.SetBackgroundOption(value)
	case "overlay-color":
		return ed.SetOverlayColor(value)
	case "header-color":
		return ed.SetHeaderColor(value)
	case "header-text-color":
		return ed.SetHeaderTextColor(value)
	case "page-bg":
		return ed.SetPageBgColor(value)
	case "color":
		return ed.SetGlobalColor(value)
	case "text-color":
		return ed.SetGlobalTextColor(value)
	case "align":
		return ed.SetGlobalAlign(value)
	case "font":
		return ed.SetFont(value, 0)
	case "shadow":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("shadow: invalid bool %q", value)
		}
		return ed.SetShadow(on)
	case "font-size":
		l, ok := layout.ParseLength(value)
		if !ok || l.ToPX() <= 0 {
			return fmt.Errorf("font-size: invalid length %q", value)
		}
		return ed.SetFont(ed.Settings().GlobalCardStyles.FontFamily, l.ToPX())
	case "overlay-opacity", "header-opacity", "opacity", "line-height":
		v, err := number()
		if err != nil {
			return err
		}
		switch key {
		case "overlay-opacity":
			return ed.SetOverlayOpacity(v)
		case "header-opacity":
			return ed.SetHeaderOpacity(v)
		case "opacity":
			return ed.SetGlobalOpacity(v)
		default:
			return ed.SetLineHeight(v)
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func newExportCmd(s func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "导出配置文件（JSON）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := s().editor.ExportJSON()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return fmt.Errorf("写入配置文件失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已导出配置：%s\n", args[0])
			return nil
		},
	}
}

func newImportCmd(s func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "导入配置文件（JSON）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("读取配置文件失败: %w", err)
			}
			return s().editor.ImportJSON(data)
		},
	}
}

func newLayoutCmd(s func() *session) *cobra.Command {
	var width float64
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "以 JSON 输出预览区的布局结果",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ed := s().editor
			if cmd.Flags().Changed("width") {
				ed.SetViewportWidth(width)
			}
			res, err := ed.Preview()
			if err != nil {
				return fmt.Errorf("布局计算失败: %w", err)
			}
			return layout.EncodeDebugJSON(res, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Float64Var(&width, "width", 0, "viewport width in px")
	return cmd
}

func newRenderCmd(s func() *session) *cobra.Command {
	var (
		out, debugPath, avatarPath, background string
		width, scale                           float64
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "导出 PNG 图片",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := s()
			ed := sess.editor
			if avatarPath != "" {
				img, err := decodeImageFile(avatarPath)
				if err != nil {
					return err
				}
				if err := ed.SetAvatarImage(img, editor.CenterCropper{}); err != nil {
					return fmt.Errorf("裁剪头像失败: %w", err)
				}
			}
			if background != "" {
				ed.SetBackgroundImage(background)
			}
			opts := editor.ExportOptions{Width: sess.cfg.Export.Width, Scale: sess.cfg.Export.Scale}
			if cmd.Flags().Changed("width") {
				opts.Width = width
			}
			if cmd.Flags().Changed("scale") {
				opts.Scale = scale
			}
			if debugPath != "" {
				res, err := ed.ComposeExport(opts)
				if err != nil {
					return err
				}
				if err := layout.WriteDebugJSON(res, debugPath); err != nil {
					return fmt.Errorf("输出调试 JSON 失败: %w", err)
				}
			}
			png, err := ed.ExportImage(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(sess.cfg.Export.Dir, ed.ExportFilename())
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("创建输出目录失败: %w", err)
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("写入图片失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已生成图片：%s\n", out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "", "PNG output path")
	f.StringVar(&debugPath, "debug", "", "layout debug JSON output path")
	f.StringVar(&avatarPath, "avatar", "", "avatar image file, center-cropped to 200x200")
	f.StringVar(&background, "background", "", "page background image path")
	f.Float64Var(&width, "width", 600, "export width in px")
	f.Float64Var(&scale, "scale", 2, "resolution multiplier")
	return cmd
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开图片失败: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("解码图片 %s 失败: %w", path, err)
	}
	return img, nil
}

func parseID(v string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(v, "#"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid card id %q", v)
	}
	return id, nil
}
