// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/image/draw"

	eink "github.com/santek/eink-go"
	"github.com/santek/eink-go/eink/dither"
	"github.com/santek/eink-go/eink/transport"
	"github.com/santek/eink-go/eink/transport/libnfc"
	"github.com/santek/eink-go/eink/transport/rcs380"
)

type config struct {
	imagePath  string
	transport  string
	devicePath string
	bg         string
	ditherMode string
	resizeMode string
	clear      bool
	showInfo   bool
	help       bool
	debug      bool
}

var (
	flagTransport  string
	flagDevicePath string
	flagBg         string
	flagDither     string
	flagResize     string
	flagClear      bool
	flagInfo       bool
	flagHelp       bool
	flagDebug      bool
)

func init() {
	flag.StringVar(&flagTransport, "transport", "rcs380", "Transport to use: rcs380 or libnfc")
	flag.StringVar(&flagDevicePath, "device", "", "libnfc connection string (ignored for rcs380, which auto-detects)")
	flag.StringVar(&flagBg, "bg", "white", "Background color for --clear: black, white, yellow, or red")
	flag.StringVar(&flagDither, "dither", "atkinson", "Dithering mode: atkinson or none")
	flag.StringVar(&flagResize, "resize", "fit", "Resize mode: fit, cover, or none")
	flag.BoolVar(&flagClear, "clear", false, "Clear the display to a solid background color and exit")
	flag.BoolVar(&flagInfo, "info", false, "Print the connected device's descriptor and exit")
	flag.BoolVar(&flagHelp, "help", false, "Print usage and exit")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseConfig(args []string) *config {
	cfg := &config{
		transport:  flagTransport,
		devicePath: flagDevicePath,
		bg:         flagBg,
		ditherMode: flagDither,
		resizeMode: flagResize,
		clear:      flagClear,
		showInfo:   flagInfo,
		help:       flagHelp,
		debug:      flagDebug,
	}
	if len(args) > 0 {
		cfg.imagePath = args[0]
	}
	if cfg.debug {
		eink.SetDebugEnabled(true)
	}
	return cfg
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: eink-send [flags] <image>")
	fmt.Fprintln(os.Stderr, "       eink-send -clear [-bg color]")
	fmt.Fprintln(os.Stderr, "       eink-send -info")
	flag.PrintDefaults()
}

func newTransportFactory(cfg *config) (transport.Factory, error) {
	switch strings.ToLower(cfg.transport) {
	case "rcs380":
		return rcs380.Factory(), nil
	case "libnfc":
		return libnfc.Factory(cfg.devicePath), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q (want rcs380 or libnfc)", cfg.transport)
	}
}

var bgColorIndex = map[string]int{
	"black":  0,
	"white":  1,
	"yellow": 2,
	"red":    3,
}

func run(ctx context.Context, cfg *config) error {
	factory, err := newTransportFactory(cfg)
	if err != nil {
		return err
	}

	sess := eink.NewSession(factory, eink.WithProgress(func(block, total int) {
		if cfg.debug {
			fmt.Fprintf(os.Stderr, "block %d/%d sent\n", block, total)
		}
	}))
	defer func() {
		if err := sess.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: close: %v\n", err)
		}
	}()

	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	info := sess.DeviceInfo()
	if cfg.showInfo {
		fmt.Printf("%d x %d, %d bpp (%d colors), serial %q\n",
			info.Width, info.Height, info.BitsPerPixel, info.NumColors(), info.SerialNumber)
		return nil
	}

	if cfg.clear {
		return clearDisplay(ctx, sess, cfg)
	}

	if cfg.imagePath == "" {
		return errors.New("missing image path (see -help)")
	}

	grid, err := loadAndDither(cfg, info.Width, info.Height, info.NumColors())
	if err != nil {
		return err
	}

	if err := sess.SendImage(ctx, grid); err != nil {
		return fmt.Errorf("send image: %w", err)
	}
	return sess.Refresh(ctx, 30*time.Second, 500*time.Millisecond)
}

func clearDisplay(ctx context.Context, sess *eink.Session, cfg *config) error {
	idx, ok := bgColorIndex[strings.ToLower(cfg.bg)]
	if !ok {
		return fmt.Errorf("unknown background color %q", cfg.bg)
	}
	info := sess.DeviceInfo()
	if idx >= info.NumColors() {
		return fmt.Errorf("color %q is not in this device's %d-color palette", cfg.bg, info.NumColors())
	}

	grid := eink.NewPixelGrid(info.Width, info.Height)
	for r := range grid {
		for c := range grid[r] {
			grid[r][c] = uint8(idx)
		}
	}

	if err := sess.SendImage(ctx, grid); err != nil {
		return fmt.Errorf("send image: %w", err)
	}
	return sess.Refresh(ctx, 30*time.Second, 500*time.Millisecond)
}

func loadAndDither(cfg *config, width, height, numColors int) (eink.PixelGrid, error) {
	f, err := os.Open(cfg.imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", eink.ErrImageLoadFailed, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", eink.ErrImageLoadFailed, err)
	}

	resized := resizeImage(img, width, height, cfg.resizeMode)
	rgb := flattenRGB(resized, width, height)

	palette := eink.Palette4Color
	if numColors == 2 {
		palette = eink.Palette2Color
	}
	ditherPalette := toDitherPalette(palette)

	var grid dither.Grid
	switch strings.ToLower(cfg.ditherMode) {
	case "none":
		grid = dither.QuantizeNearest(rgb, width, height, ditherPalette)
	case "atkinson", "":
		grid = dither.DitherAtkinson(rgb, width, height, ditherPalette)
	default:
		return nil, fmt.Errorf("unknown dither mode %q", cfg.ditherMode)
	}

	return eink.PixelGrid(grid), nil
}

// resizeImage scales src to exactly width x height. "fit" letterboxes
// onto a white canvas preserving aspect ratio; "cover" crops to fill;
// "none" stretches without preserving aspect ratio.
func resizeImage(src image.Image, width, height int, mode string) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return dst
	}

	switch strings.ToLower(mode) {
	case "cover":
		scale := max(float64(width)/float64(sw), float64(height)/float64(sh))
		dw, dh := int(float64(sw)*scale), int(float64(sh)*scale)
		ox, oy := (width-dw)/2, (height-dh)/2
		draw.CatmullRom.Scale(dst, image.Rect(ox, oy, ox+dw, oy+dh), src, sb, draw.Over, nil)
	case "none":
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	default: // "fit"
		scale := min(float64(width)/float64(sw), float64(height)/float64(sh))
		dw, dh := int(float64(sw)*scale), int(float64(sh)*scale)
		ox, oy := (width-dw)/2, (height-dh)/2
		draw.CatmullRom.Scale(dst, image.Rect(ox, oy, ox+dw, oy+dh), src, sb, draw.Over, nil)
	}
	return dst
}

func flattenRGB(img *image.RGBA, width, height int) []dither.RGB {
	out := make([]dither.RGB, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out[y*width+x] = dither.RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
		}
	}
	return out
}

func toDitherPalette(p eink.Palette) dither.Palette {
	out := make(dither.Palette, len(p))
	for i, c := range p {
		out[i] = dither.RGB{R: c.R, G: c.G, B: c.B}
	}
	return out
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig(flag.Args())

	if cfg.help {
		usage()
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
