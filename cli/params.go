package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/viant/sqlite-minhash/index/lsh"
)

// ParamsResult is the JSON output of params.
type ParamsResult struct {
	NumPerm            int     `json:"num_perm"`
	Threshold          float64 `json:"threshold"`
	Bands              int     `json:"bands"`
	Rows               int     `json:"rows"`
	EffectiveThreshold float64 `json:"effective_threshold"`
	// Recall at the threshold: probability that a pair at exactly the
	// threshold shares a band.
	Recall float64 `json:"recall"`
}

// NewParamsCommand creates the params command.
func NewParamsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		numPerm   int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Show the LSH banding chosen for a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := lsh.OptimalParams(threshold, numPerm)
			if err != nil {
				return err
			}
			res := ParamsResult{
				NumPerm:            numPerm,
				Threshold:          threshold,
				Bands:              p.Bands,
				Rows:               p.Rows,
				EffectiveThreshold: p.Threshold(),
				Recall:             p.Probability(threshold),
			}
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprintf(out, "num_perm=%d threshold=%.3f bands=%d rows=%d effective_threshold=%.4f recall=%.4f\n",
				res.NumPerm, res.Threshold, res.Bands, res.Rows, res.EffectiveThreshold, res.Recall)
			return nil
		},
	}
	cmd.Flags().IntVar(&numPerm, "num-perm", 128, "number of permutations")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.7, "target Jaccard threshold")
	return cmd
}
