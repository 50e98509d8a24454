// Command mkimage builds and inspects program images for the spawn syscall.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/inhies/go-bytesize"

	"nucleus/mm"
)

func main() {
	var (
		name     = flag.String("name", "", "Registered program the image runs.")
		codePath = flag.String("code", "", "File mapped as the image's code (optional).")
		outPath  = flag.String("out", "", "Output image file.")
		dumpPath = flag.String("dump", "", "Print the header of an existing image.")
	)
	flag.Parse()

	if *dumpPath != "" {
		if err := dump(os.Stdout, *dumpPath); err != nil {
			fatalf("dump: %v", err)
		}
		return
	}
	if *name == "" || *outPath == "" {
		fatalf("usage: mkimage -name initd [-code code.bin] -out initd.img\n       mkimage -dump initd.img")
	}
	if err := build(*name, *codePath, *outPath); err != nil {
		fatalf("build: %v", err)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

func build(name, codePath, outPath string) error {
	var code []byte
	if codePath != "" {
		var err error
		if code, err = os.ReadFile(codePath); err != nil {
			return fmt.Errorf("read code %q: %w", codePath, err)
		}
	}
	img := mm.BuildImage(name, code)
	if _, _, err := mm.ParseImage(img); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, img, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", outPath, err)
	}
	return nil
}

func dump(w io.Writer, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	name, code, err := mm.ParseImage(b)
	if err != nil {
		return fmt.Errorf("%q: %w", path, err)
	}
	_, err = fmt.Fprintf(w, "program: %s\ncode: %s\nsize: %s\n",
		name, bytesize.ByteSize(len(code)), bytesize.ByteSize(len(b)))
	return err
}
