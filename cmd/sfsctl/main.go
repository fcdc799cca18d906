package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/sfs"
	"github.com/mit-pdos/go-sfs/util"
)

func main() {
	c, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := newApp(c, os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(c *Config, w io.Writer) *cli.App {
	return &cli.App{
		Name:        "sfsctl",
		Usage:       "inspect and modify a simple file system image",
		Description: "every command opens the image, runs, and closes it again",
		Writer:      w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path of the disk image",
				Value:   c.Image,
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Usage: "debug log verbosity",
				Value: c.Debug,
			},
			&cli.IntFlag{
				Name:  "dir-blocks",
				Usage: "directory blocks to allocate when formatting",
				Value: c.DirBlocks,
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "refuse images whose superblock does not validate",
				Value: c.Verify,
			},
		},
		Before: func(ctx *cli.Context) error {
			c.Image = ctx.String("image")
			c.Debug = ctx.Uint64("debug")
			c.DirBlocks = ctx.Int("dir-blocks")
			c.Verify = ctx.Bool("verify")
			util.Debug = c.Debug
			return c.Validate()
		},
		Commands: []*cli.Command{{
			Name:        "format",
			Aliases:     []string{"mkfs"},
			Description: "create (or recreate) an empty volume",
			Action: func(ctx *cli.Context) error {
				v, err := sfs.Open(c.Image, true, c.Options())
				if err != nil {
					return fmt.Errorf("formatting %s: %w", c.Image, err)
				}
				fmt.Fprintf(ctx.App.Writer, "formatted %s as volume %s\n", c.Image, v.Super().ID)
				return v.Unmount()
			},
		}, {
			Name:        "ls",
			Aliases:     []string{"list"},
			Description: "list files and their sizes",
			Action: withVolume(c, func(v *sfs.Volume, ctx *cli.Context) error {
				names, err := v.List()
				if err != nil {
					return err
				}
				for _, name := range names {
					size, err := v.FileSize(name)
					if err != nil {
						return fmt.Errorf("stat %q: %w", name, err)
					}
					fmt.Fprintf(ctx.App.Writer, "%-*s %d\n", int(common.MaxName), name, size)
				}
				return nil
			}),
		}, {
			Name:        "write",
			ArgsUsage:   "NAME DATA",
			Description: "write DATA to NAME, creating it if needed; appends unless --at is given",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "at",
					Usage: "byte offset to write at",
				},
			},
			Action: withVolume(c, func(v *sfs.Volume, ctx *cli.Context) error {
				args, err := exactArgs(ctx, 2)
				if err != nil {
					return err
				}
				name, data := args[0], []byte(args[1])
				fd, err := v.OpenOrCreate(name)
				if err != nil {
					return err
				}
				defer v.Close(fd)
				st, err := v.Stat(fd)
				if err != nil {
					return err
				}
				off := st.Cursor
				if ctx.IsSet("at") {
					off = ctx.Uint64("at")
				}
				for p := data; len(p) > 0; {
					if err := v.Seek(fd, off); err != nil {
						return err
					}
					n, err := v.Write(fd, p)
					if err != nil {
						return fmt.Errorf("writing %q at %d: %w", name, off, err)
					}
					p = p[n:]
					off += uint64(n)
				}
				fmt.Fprintf(ctx.App.Writer, "wrote %d bytes to %s\n", len(data), name)
				return nil
			}),
		}, {
			Name:        "cat",
			ArgsUsage:   "NAME",
			Description: "print the contents of NAME up to the first zero byte",
			Action: withVolume(c, func(v *sfs.Volume, ctx *cli.Context) error {
				args, err := exactArgs(ctx, 1)
				if err != nil {
					return err
				}
				name := args[0]
				if _, err := v.Lookup(name); err != nil {
					return fmt.Errorf("cat %q: %w", name, err)
				}
				fd, err := v.OpenOrCreate(name)
				if err != nil {
					return err
				}
				defer v.Close(fd)
				for off := uint64(0); ; {
					if err := v.Seek(fd, off); err != nil {
						return err
					}
					p, err := v.Read(fd, int(common.BlockSize))
					if err != nil {
						return fmt.Errorf("reading %q at %d: %w", name, off, err)
					}
					if len(p) == 0 {
						return nil
					}
					if _, err := ctx.App.Writer.Write(p); err != nil {
						return err
					}
					off += uint64(len(p))
				}
			}),
		}, {
			Name:        "rm",
			Aliases:     []string{"remove", "delete"},
			ArgsUsage:   "NAME",
			Description: "remove NAME from the directory",
			Action: withVolume(c, func(v *sfs.Volume, ctx *cli.Context) error {
				args, err := exactArgs(ctx, 1)
				if err != nil {
					return err
				}
				return v.Remove(args[0])
			}),
		}, {
			Name:        "info",
			Description: "print volume geometry and usage as YAML",
			Action: withVolume(c, func(v *sfs.Volume, ctx *cli.Context) error {
				info, err := v.Info()
				if err != nil {
					return err
				}
				return printYAML(ctx.App.Writer, info)
			}),
		}, {
			Name:        "check",
			Aliases:     []string{"fsck"},
			Description: "verify on-disk invariants; exits non-zero on corruption",
			Action: withVolume(c, func(v *sfs.Volume, ctx *cli.Context) error {
				r, err := v.Check()
				if err != nil {
					return err
				}
				if err := printYAML(ctx.App.Writer, r); err != nil {
					return err
				}
				return r.Err()
			}),
		}},
	}
}

func withVolume(c *Config, f func(*sfs.Volume, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		v, err := sfs.Open(c.Image, false, c.Options())
		if err != nil {
			return fmt.Errorf("opening %s: %w", c.Image, err)
		}
		if err := f(v, ctx); err != nil {
			v.Unmount()
			return err
		}
		return v.Unmount()
	}
}

func exactArgs(ctx *cli.Context, n int) ([]string, error) {
	if ctx.NArg() != n {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", ctx.Command.Name, n, ctx.NArg())
	}
	return ctx.Args().Slice(), nil
}

func printYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling to YAML: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing YAML: %w", err)
	}
	return nil
}
