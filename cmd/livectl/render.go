package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/recera/liveclient/pkg/render"
)

func newRenderCommand() *cobra.Command {
	var (
		page      string
		container string
		full      bool
	)

	cmd := &cobra.Command{
		Use:   "render PATCH...",
		Short: "Apply rendered patches offline and print the result",
		Long: `Applies each patch file in order to the container, the same way a
connected view would, and prints the final markup. Use - to read a patch
from stdin. The first patch must carry the static template.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadPage(page, container)
			if err != nil {
				return err
			}
			r, err := render.New(doc, container, render.WithLogger(zap.NewNop()))
			if err != nil {
				return err
			}

			for _, name := range args {
				data, err := readPatch(cmd.InOrStdin(), name)
				if err != nil {
					return err
				}
				p, err := render.ParsePatch(data)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				if err := r.Apply(p); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}

			out := r.Markup()
			if full {
				doc.Read(func() { out = doc.String() })
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().StringVar(&page, "page", "", "HTML shell holding the mount element")
	cmd.Flags().StringVar(&container, "container", "app", "id of the mount element")
	cmd.Flags().BoolVar(&full, "full", false, "print the whole document instead of the container markup")
	return cmd
}

func readPatch(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}
	return data, nil
}
