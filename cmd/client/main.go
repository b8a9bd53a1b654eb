/*
Package main is the entry point for the metaverse avatar client.

It loads the client configuration and the saved profile, parses the room maps,
joins the configured room on the relay and hands control to ebiten. The game
exits on Escape or when the window closes.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"metaverse/internal/app/profile"
	"metaverse/internal/app/render"
	"metaverse/internal/app/render/screen"
	"metaverse/internal/app/session"
	"metaverse/internal/app/world"
	"metaverse/internal/configs"
	"metaverse/internal/pkg/logx"
)

const (
	appName   = "metaverse"
	labelSize = 12
)

func main() {
	cfg, err := configs.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("server", cfg.ServerAddr).
		Str("room", cfg.RoomType+"/"+cfg.RoomID).
		Int("target_fps", cfg.TargetFPS).
		Msg("Configuration loaded successfully")

	storage, err := profile.Open(appName)
	if err != nil {
		logx.Fatal(err, "Failed to open profile storage")
	}
	self, err := profile.Load(storage, cfg.Nickname)
	if err != nil {
		logx.Fatal(err, "Failed to load profile")
	}
	logx.Info("Profile loaded", "user_id", self.ID, "nickname", self.Nickname)

	fsys := os.DirFS(cfg.MapsDir)
	maps, names, err := world.LoadAll(fsys, "maps")
	if err != nil {
		logx.Fatal(err, "Failed to load maps")
	}

	backgrounds := make(map[string]image.Image, len(maps))
	for name, m := range maps {
		bg, err := m.RenderBackground(fsys)
		if err != nil {
			logx.Warn("Map background not rendered", "map", name, "error", err.Error())
			continue
		}
		backgrounds[backgroundKey(name)] = bg
	}

	face, err := screen.LabelFace(labelSize)
	if err != nil {
		logx.Fatal(err, "Failed to load label font")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	imgLogger := logx.Component("images")
	images := render.NewImageCache(ctx, screen.WithImages(backgrounds, screen.FileLoader(fsys)), &imgLogger)
	defer images.Close()

	g := &game{
		ctx:         ctx,
		cfg:         cfg,
		self:        self,
		maps:        maps,
		fallbackMap: names[0],
		images:      images,
		face:        face,
		loop:        render.NewLoop(cfg.TargetFPS),
		appearance:  render.VariantAppearance("default", "red", "blue"),
		logger:      logx.Component("game"),
	}
	if err := g.enter(cfg.RoomType, cfg.RoomID); err != nil {
		logx.Fatal(err, "Failed to join room")
	}
	defer g.leave()

	joinLogger := logx.Component("game")
	g.joiner = session.NewJoiner(g.dial, session.JoinerOptions{Logger: &joinLogger})
	defer g.joiner.Close()

	w, h := g.Layout(0, 0)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle("Metaverse - " + self.Nickname)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	// Frames the render loop skips keep the previous picture.
	ebiten.SetScreenClearedEveryFrame(false)

	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		logx.Error(err, "Game stopped with error")
	}
	logx.Info("Client stopped")
}

func backgroundKey(mapName string) string {
	return "backgrounds/" + mapName
}
