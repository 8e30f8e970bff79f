package resolver

import (
	"embed"
	"io/fs"
)

//go:embed all:typeshed
var vendoredFiles embed.FS

// VendoredTypeshed returns the embedded typeshed tree. Its stdlib directory holds
// the stubs and the VERSIONS file used when no custom typeshed is configured.
func VendoredTypeshed() fs.FS {
	sub, err := fs.Sub(vendoredFiles, "typeshed")
	if err != nil {
		panic(err)
	}
	return sub
}
