// Package archive packs build output into .tar.xz release archives.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

// Name returns the archive file name for a build of app on goos/goarch.
func Name(app, goos, goarch string) string {
	app = strings.ReplaceAll(app, " ", "-")
	return app + "-" + goos + "-" + goarch + ".tar.xz"
}

// Create packs every file below root into dest. Entries are stored relative to
// the parent of root so the archive unpacks into a single folder (or file).
// dest itself is skipped if it lives below root.
func Create(dest, root string) (int, error) {
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return 0, eris.Wrapf(err, "Failed to resolve %s", dest)
	}

	handle, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrapf(err, "Failed to create archive %s", dest)
	}
	defer handle.Close()

	xzWriter, err := xz.NewWriter(handle)
	if err != nil {
		return 0, eris.Wrap(err, "Failed to initialize xz compressor")
	}

	tarWriter := tar.NewWriter(xzWriter)
	base := filepath.Dir(filepath.Clean(root))
	count := 0

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if absPath == absDest {
			return nil
		}

		relPath, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return eris.Wrapf(err, "Failed to build header for %s", path)
		}
		hdr.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			hdr.Name += "/"
		}

		err = tarWriter.WriteHeader(hdr)
		if err != nil {
			return eris.Wrapf(err, "Failed to write header for %s", path)
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "Failed to open file %s", path)
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		if err != nil {
			return eris.Wrapf(err, "Failed to pack file %s", path)
		}

		count++
		return nil
	})
	if err != nil {
		return 0, eris.Wrapf(err, "Failed to pack %s", root)
	}

	if err = tarWriter.Close(); err != nil {
		return 0, eris.Wrap(err, "Failed to finish tar stream")
	}
	if err = xzWriter.Close(); err != nil {
		return 0, eris.Wrap(err, "Failed to finish xz stream")
	}

	return count, handle.Close()
}
