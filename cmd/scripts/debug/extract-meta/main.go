package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/mbs4/mbs4/pkg/metadata"
	"github.com/robinjoseph08/golib/logger"
)

func main() {
	log := logger.New()

	var opts struct {
		CoverOutput string `short:"o" long:"cover-output" description:"A path to move the extracted cover image to"`
		MetaBin     string `long:"ebook-meta-bin" description:"Path of the ebook-meta binary"`
		ConvertBin  string `long:"ebook-convert-bin" description:"Path of the ebook-convert binary"`
		SofficeBin  string `long:"soffice-bin" description:"Path of the soffice binary"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/extract-meta <path/to/file.epub>")
		os.Exit(1)
	}

	extractor, err := metadata.NewExtractor(metadata.Options{
		MetaBin:    opts.MetaBin,
		ConvertBin: opts.ConvertBin,
		SofficeBin: opts.SofficeBin,
	})
	if err != nil {
		log.Err(err).Fatal("extractor error")
	}

	meta, err := extractor.ExtractMetadata(context.Background(), args[0], opts.CoverOutput != "")
	if err != nil {
		log.Err(err).Fatal("extract error")
	}

	fmt.Printf("%+v\n", meta)

	if opts.CoverOutput != "" && meta.CoverFile != "" {
		if err := os.Rename(meta.CoverFile, opts.CoverOutput); err != nil {
			log.Err(err).Fatal("move cover error")
		}
		fmt.Printf("Cover written to %s\n", opts.CoverOutput)
	}
}
