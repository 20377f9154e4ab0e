package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/treeblob/internal/progress"
)

func (a *app) putCommand() *cobra.Command {
	var id string
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Store a file as a blob and print its id",
		Long:  "Store a file as a blob and print its id. Use - to read from stdin. Without --id a fresh id is generated.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}

			in, size, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			if showProgress {
				svc.SetProgressReporter(newBarReporter(cmd.ErrOrStderr()))
			}
			stored, err := svc.Put(cmd.Context(), in, size, id)
			if err != nil {
				return err
			}
			cmd.Println(stored)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "blob id to store under")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "show transfer progress on stderr")
	return cmd
}

// openInput opens a local file, or stdin for "-", and returns its size
// (-1 when unknown)
func openInput(cmd *cobra.Command, name string) (io.ReadCloser, int64, error) {
	if name == "-" {
		return io.NopCloser(cmd.InOrStdin()), -1, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", name)
	}
	return f, info.Size(), nil
}

func (a *app) getCommand() *cobra.Command {
	var output string
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Write the contents of a blob to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			if showProgress {
				svc.SetProgressReporter(newBarReporter(cmd.ErrOrStderr()))
			}

			if output == "" || output == "-" {
				_, err := svc.Get(cmd.Context(), args[0], cmd.OutOrStdout())
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if _, err := svc.Get(cmd.Context(), args[0], f); err != nil {
				f.Close()
				os.Remove(output)
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "show transfer progress on stderr")
	return cmd
}

func (a *app) statCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <id>",
		Short: "Show the path and size of a blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			info, err := svc.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("ID:   %s\n", info.ID)
			cmd.Printf("Path: %s\n", info.Path)
			cmd.Printf("Size: %d (%s)\n", info.Size, progress.FormatBytes(info.Size))
			return nil
		},
	}
}

func (a *app) rmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a blob; deleting a missing blob succeeds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			return svc.Remove(cmd.Context(), args[0])
		},
	}
}

func (a *app) mvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> [dst]",
		Short: "Move a blob and print its new id",
		Long:  "Move a blob to dst, creating missing directories. Without dst the blob moves to a fresh id.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			dst := ""
			if len(args) == 2 {
				dst = args[1]
			}
			moved, err := svc.Move(cmd.Context(), args[0], dst)
			if err != nil {
				return err
			}
			cmd.Println(moved)
			return nil
		},
	}
}

func (a *app) lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List blob ids starting with prefix",
		Long:  "List blob ids starting with prefix. A prefix containing / restricts the listing to that directory.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return svc.List(cmd.Context(), prefix, func(id string) error {
				cmd.Println(id)
				return nil
			})
		},
	}
}
