package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/soypat/sdspi"
	"github.com/soypat/sdspi/sdsim"
	"github.com/urfave/cli/v2"
)

// commands available in every build. Write support registers itself.
var commands = []*cli.Command{
	{
		Name:   "info",
		Usage:  "initialize the card and print what was negotiated",
		Action: infoAction,
	},
	{
		Name:    "read",
		Aliases: []string{"r"},
		Usage:   "read sectors and hex dump them or store them to a file",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "sector", Aliases: []string{"s"}, Usage: "first sector to read"},
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "number of sectors"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file, hex dump to stdout if empty"},
		},
		Action: readAction,
	},
	{
		Name:   "sync",
		Usage:  "flush pending writes",
		Action: syncAction,
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "sdimg",
		Usage:   "Access SD cards over SPI, or a simulated card backed by an image file",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "image file backing a simulated card"},
			&cli.UintFlag{Name: "blocks", Value: 2048, Usage: "size in sectors of a newly created image"},
			&cli.StringFlag{Name: "kind", Value: "sdhc", Usage: "simulated card kind: sdhc, sdv2, sdv1 or mmc"},
			&cli.StringFlag{Name: "spidev", Usage: "spidev device with a real card attached, e.g. /dev/spidev0.0"},
			&cli.UintFlag{Name: "base-hz", Value: 16_000_000, Usage: "spidev maximum clock frequency"},
			&cli.BoolFlag{Name: "verbose", Usage: "log driver activity to stderr"},
		},
		Commands: commands,
	}
}

// session is an open disk and the resources behind it.
type session struct {
	disk    *sdspi.Disk
	closers []io.Closer
}

func (s *session) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func openSession(c *cli.Context) (*session, error) {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	cfg := sdspi.DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))

	image, dev := c.String("image"), c.String("spidev")
	s := &session{}
	var bus sdspi.Transport
	switch {
	case image != "" && dev != "":
		return nil, errors.New("--image and --spidev are mutually exclusive")
	case image != "":
		kind, err := parseKind(c.String("kind"))
		if err != nil {
			return nil, err
		}
		fp, blocks, err := openImage(image, uint32(c.Uint("blocks")))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, fp)
		bus = sdsim.NewCard(kind, fp, blocks)
	case dev != "":
		conn, err := openSPIDev(dev, uint32(c.Uint("base-hz")))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, conn)
		bus = conn
	default:
		return nil, errors.New("one of --image or --spidev is required")
	}
	s.disk = sdspi.NewDisk(sdspi.New(bus, cfg))
	return s, nil
}

// openImage opens or creates an image file. New or empty images are sized to
// blocks sectors; existing ones keep their size.
func openImage(path string, blocks uint32) (*os.File, uint32, error) {
	fp, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, 0, err
	}
	info, err := fp.Stat()
	if err != nil {
		fp.Close()
		return nil, 0, err
	}
	size := info.Size()
	if size == 0 {
		size = int64(blocks) * sdspi.SectorSize
		if err := fp.Truncate(size); err != nil {
			fp.Close()
			return nil, 0, err
		}
	}
	return fp, uint32(size / sdspi.SectorSize), nil
}

func parseKind(s string) (sdsim.Kind, error) {
	for _, k := range []sdsim.Kind{sdsim.SDHC, sdsim.SDv2, sdsim.SDv1, sdsim.MMC} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown card kind %q", s)
}

func initialize(s *session) error {
	if status := s.disk.Initialize(0); status != sdspi.StatusOK {
		return fmt.Errorf("card initialization: %s", status)
	}
	return nil
}

func infoAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := initialize(s); err != nil {
		return err
	}
	dev := s.disk.Device()
	ocr := dev.OCR()
	w := c.App.Writer
	fmt.Fprintf(w, "status:      %s\n", s.disk.Status(0))
	fmt.Fprintf(w, "card:        %s\n", dev.CardKind())
	fmt.Fprintf(w, "ocr:         %#08x (high capacity=%t)\n", uint32(ocr), ocr.HighCapacity())
	fmt.Fprintf(w, "addressing:  %d\n", dev.AddressMultiplier())
	fmt.Fprintf(w, "sector size: %d\n", dev.SectorSize())
	return nil
}

func readAction(c *cli.Context) error {
	count := c.Int("count")
	if count < 1 {
		return errors.New("--count must be at least 1")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	buf := make([]byte, count*sdspi.SectorSize)
	n, res := s.disk.ReadSectors(0, buf, uint32(c.Uint("sector")), count)
	buf = buf[:n*sdspi.SectorSize]
	if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, buf, 0o644); err != nil {
			return err
		}
	} else {
		dumper := hex.Dumper(c.App.Writer)
		dumper.Write(buf)
		dumper.Close()
	}
	if res != sdspi.ResOK {
		return fmt.Errorf("read stopped after %d sectors: %s", n, res)
	}
	return nil
}

func syncAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := initialize(s); err != nil {
		return err
	}
	if res := s.disk.Ioctl(0, sdspi.IoctlSync); res != sdspi.ResOK {
		return fmt.Errorf("sync: %s", res)
	}
	return nil
}
