package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <path>...",
	Short: "Import pages and modules into the content store",
	Long: `Import files into the content store. Directories are walked.

A file ending in .lua becomes a module named after the file, so
greet.lua is stored as Module:Greet. Any other file becomes a page named
after the file without its extension; write namespaces into the file
name (Template:Box.wiki) or use --title for a single file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().String("title", "", "Page title for a single imported file")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	if title != "" && len(args) != 1 {
		return errors.New("--title needs exactly one file")
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	put := func(path, title string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		page, err := rt.store.Put(cmd.Context(), title, string(data))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s)\n", page.Title, page.ID)
		return nil
	}

	for _, root := range args {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if title != "" {
				return put(path, title)
			}
			return put(path, titleFromFile(d.Name()))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// titleFromFile maps a file name to a page title.
func titleFromFile(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if strings.EqualFold(ext, ".lua") && !strings.Contains(base, ":") {
		return "Module:" + base
	}
	return base
}
