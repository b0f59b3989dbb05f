package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var manifestTemplates = map[string]string{
	"pkl": `// pinmatrix project manifest

package {
  name = %[1]q
  sourcePath = "."
}

sources {
  new {
    name = "self"
    locator = "path:."
  }
}

platforms {
  "x86_64-linux"
  "aarch64-darwin"
}

builder {
  name = "null"
}
`,
	"yaml": `# pinmatrix project manifest
package:
  name: %[1]s
  sourcePath: .

sources:
  - name: self
    locator: path:.

platforms:
  - x86_64-linux
  - aarch64-darwin

builder:
  name: "null"
`,
	"hcl": `# pinmatrix project manifest

package %[1]q {
  source_path = "."
}

source "self" {
  locator = "path:."
}

platforms = ["x86_64-linux", "aarch64-darwin"]

builder "null" {}
`,
}

func newInitCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Initialize a new pinmatrix project",
		Long:  `Creates a project manifest in the current directory. The package name defaults to the directory name.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, ok := manifestTemplates[format]
			if !ok {
				return fmt.Errorf("unknown manifest format %q (want pkl, yaml or hcl)", format)
			}

			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			name := filepath.Base(wd)
			if len(args) > 0 {
				name = args[0]
			}
			return writeManifest(cmd, wd, format, fmt.Sprintf(tmpl, name))
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Manifest format: pkl, yaml or hcl")
	return cmd
}

func writeManifest(cmd *cobra.Command, dir, format, content string) error {
	path := filepath.Join(dir, "pinmatrix."+format)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Created %s\n", path)
	fmt.Fprintln(w, "\npinmatrix initialized successfully!")
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Declare your sources and platforms in the manifest")
	fmt.Fprintln(w, "  2. Run 'pinmatrix lock' to pin every source")
	fmt.Fprintln(w, "  3. Run 'pinmatrix build' to build the primary platform's output")
	return nil
}
