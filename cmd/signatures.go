package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/jlumpe/gambit/config"
	"github.com/jlumpe/gambit/internal/kmer"
	"github.com/jlumpe/gambit/internal/sigs"
	"github.com/jlumpe/gambit/internal/workers"
)

var (
	sigsListfile string
	sigsOutput   string
	sigsPrefix   string
	sigsK        int
	sigsCompress bool
	sigsMetadata string
	sigsProgress bool
)

// signaturesCmd groups subcommands working with signature files.
var signaturesCmd = &cobra.Command{
	Use:   "signatures",
	Short: "Create signature files from genome assemblies",
}

// signaturesCreateCmd represents the signatures create command
var signaturesCreateCmd = &cobra.Command{
	Use:   "create [flags] [GENOMES...]",
	Short: "Calculate k-mer signatures and write them to a signature file",
	Long: `Calculate k-mer signatures for a set of genome assemblies and write
them to a signature (.gs) file. Each input FASTA file produces one
signature; its ID is the file's base name with any .gz and
.fasta/.fa/.fna extension removed.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := config.New()

		files, err := gatherInputs(args, sigsListfile)
		if err != nil {
			stderr.Fatalf("%v", err)
		}

		spec, err := kmer.NewSpec([]byte(sigsPrefix), sigsK)
		if err != nil {
			stderr.Fatalf("%v", err)
		}

		var metadata json.RawMessage
		if sigsMetadata != "" {
			buf, err := os.ReadFile(sigsMetadata)
			if err != nil {
				stderr.Fatalf("failed to read metadata file: %v", err)
			}
			if !json.Valid(buf) {
				stderr.Fatalf("metadata file %s is not valid JSON", sigsMetadata)
			}
			metadata = buf
		}

		pool := workers.New(c.Cores)
		defer pool.Close()

		calcOpts := sigs.CalcOptions{Pool: pool}
		var progress *mpb.Progress
		if sigsProgress {
			progress = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar := progress.AddBar(int64(len(files)),
				mpb.PrependDecorators(
					decor.Name("parsing genomes: "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(decor.Percentage()),
			)
			calcOpts.OnFile = func() { bar.Increment() }
		}

		signatures, err := sigs.CalcFileSignatures(context.Background(), spec, files, calcOpts)
		if progress != nil {
			progress.Wait()
		}
		if err != nil {
			stderr.Fatalf("failed to calculate signatures: %v", err)
		}

		opts := sigs.WriteOptions{
			IDs:      fileLabels(files),
			Metadata: metadata,
			Compress: sigsCompress,
		}
		if err := sigs.Create(sigsOutput, spec, signatures, opts); err != nil {
			stderr.Fatalf("failed to write signature file: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(signaturesCmd)
	signaturesCmd.AddCommand(signaturesCreateCmd)

	signaturesCreateCmd.Flags().StringVarP(&sigsListfile, "listfile", "l", "", "file with paths to genomes, one per line")
	signaturesCreateCmd.Flags().StringVarP(&sigsOutput, "output", "o", "", "signature file to write")
	signaturesCreateCmd.Flags().StringVarP(&sigsPrefix, "prefix", "p", kmer.DefaultPrefix, "k-mer prefix to anchor on")
	signaturesCreateCmd.Flags().IntVarP(&sigsK, "k", "k", kmer.DefaultK, "number of bases after the prefix")
	signaturesCreateCmd.Flags().BoolVarP(&sigsCompress, "compress", "c", false, "compress signature values")
	signaturesCreateCmd.Flags().StringVarP(&sigsMetadata, "metadata", "m", "", "JSON file with free-form metadata to embed")
	signaturesCreateCmd.Flags().BoolVar(&sigsProgress, "progress", false, "show a progress bar on stderr")

	signaturesCreateCmd.MarkFlagRequired("output")
}
