package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/jlumpe/gambit/config"
	"github.com/jlumpe/gambit/internal/export"
	"github.com/jlumpe/gambit/internal/query"
	"github.com/jlumpe/gambit/internal/refdb"
	"github.com/jlumpe/gambit/internal/sigs"
)

var (
	queryListfile string
	querySigfile  string
	queryOutput   string
	queryOutfmt   string
	queryStrict   bool
	queryProgress bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [flags] [GENOMES...]",
	Short: "Predict the taxonomy of genome assemblies",
	Long: `Predict the taxonomy of genome assemblies.

Each query genome is reduced to its k-mer signature and compared against
every reference in the database under the Jaccard distance. The closest
reference and the taxonomy tree yield a conservative prediction: when no
taxon's distance threshold is satisfied, no prediction is made.

Queries are FASTA files (optionally gzipped) given as arguments or via a
list file, or pre-computed signatures from a signature file.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := config.New()
		if c.DB == "" {
			stderr.Fatal("no reference database given: pass --db or set GAMBIT_DB_PATH")
		}

		db, err := refdb.OpenDir(c.DB)
		if err != nil {
			stderr.Fatalf("failed to load reference database: %v", err)
		}
		defer db.Close()

		exporter, err := export.ForFormat(queryOutfmt)
		if err != nil {
			stderr.Fatalf("%v", err)
		}

		out := os.Stdout
		if queryOutput != "" {
			f, err := os.Create(queryOutput)
			if err != nil {
				stderr.Fatalf("failed to create output file: %v", err)
			}
			defer f.Close()
			out = f
		}

		params := query.Params{
			Strict: queryStrict,
			Cores:  c.Cores,
			Chunk:  c.Chunk,
		}

		var results *query.Results
		if querySigfile != "" {
			if len(args) > 0 || queryListfile != "" {
				stderr.Fatal("genome inputs and --sigfile are mutually exclusive")
			}

			r, err := sigs.Open(querySigfile)
			if err != nil {
				stderr.Fatalf("failed to open signature file: %v", err)
			}
			defer r.Close()

			results, err = query.RunSigFile(context.Background(), db, r, params)
			if err != nil {
				stderr.Fatalf("query failed: %v", err)
			}
		} else {
			files, err := gatherInputs(args, queryListfile)
			if err != nil {
				stderr.Fatalf("%v", err)
			}

			var calcOpts sigs.CalcOptions
			var progress *mpb.Progress
			if queryProgress {
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

			results, err = query.RunFiles(context.Background(), db, files, fileLabels(files), params, calcOpts)
			if progress != nil {
				progress.Wait()
			}
			if err != nil {
				stderr.Fatalf("query failed: %v", err)
			}
		}

		if err := exporter.Export(out, results); err != nil {
			stderr.Fatalf("failed to write results: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVarP(&queryListfile, "listfile", "l", "", "file with paths to query genomes, one per line")
	queryCmd.Flags().StringVarP(&querySigfile, "sigfile", "s", "", "query with signatures from this file instead of genomes")
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", "", "file to write results to (default: stdout)")
	queryCmd.Flags().StringVarP(&queryOutfmt, "outfmt", "f", "csv", "output format: csv or json")
	queryCmd.Flags().BoolVar(&queryStrict, "strict", false, "reconcile all within-threshold matches instead of only the closest")
	queryCmd.Flags().BoolVar(&queryProgress, "progress", false, "show a progress bar on stderr")
}
