//go:build !sdreadonly

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/soypat/sdspi"
	"github.com/urfave/cli/v2"
)

func init() {
	commands = append(commands, &cli.Command{
		Name:    "write",
		Aliases: []string{"w"},
		Usage:   "write a file to consecutive sectors, zero padding the last one",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "sector", Aliases: []string{"s"}, Usage: "first sector to write"},
			&cli.StringFlag{Name: "in", Required: true, Usage: "input file"},
		},
		Action: writeAction,
	})
}

func writeAction(c *cli.Context) error {
	data, err := os.ReadFile(c.String("in"))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("input file is empty")
	}
	count := (len(data) + sdspi.SectorSize - 1) / sdspi.SectorSize
	buf := make([]byte, count*sdspi.SectorSize)
	copy(buf, data)

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	n, res := s.disk.WriteSectors(0, buf, uint32(c.Uint("sector")), count)
	fmt.Fprintf(c.App.Writer, "wrote %d/%d sectors\n", n, count)
	if res != sdspi.ResOK {
		return fmt.Errorf("write: %s", res)
	}
	return nil
}
