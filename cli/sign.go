package cli

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viant/sqlite-minhash/signature"
)

// SignOptions holds flags for the sign command.
type SignOptions struct {
	NumPerm int
	Seed    uint64
	Shingle int
}

// SignResult is the JSON output of sign.
type SignResult struct {
	Source    string `json:"source"`
	Items     int    `json:"items"`
	Signature string `json:"signature"`
}

// NewSignCommand creates the sign command.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignOptions{}
	cmd := &cobra.Command{
		Use:   "sign [file...]",
		Short: "Compute base64 MinHash signatures of text files",
		Long: `Compute the canonical base64 signature of each file (stdin when none is
given). Each line is one item unless --shingle is set, in which case items are
word shingles of that size.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(cmd, rootOpts, opts, args)
		},
	}
	cmd.Flags().IntVar(&opts.NumPerm, "num-perm", 128, "number of permutations")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", signature.DefaultSeed, "permutation seed")
	cmd.Flags().IntVar(&opts.Shingle, "shingle", 0, "word shingle size (0 = one item per line)")
	return cmd
}

func runSign(cmd *cobra.Command, rootOpts *RootOptions, opts *SignOptions, files []string) error {
	if len(files) == 0 {
		files = []string{"-"}
	}
	var results []SignResult
	for _, name := range files {
		res, err := signSource(cmd.InOrStdin(), name, opts)
		if err != nil {
			return err
		}
		results = append(results, res)
	}
	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s\t%s\n", r.Source, r.Signature)
	}
	return nil
}

func signSource(stdin io.Reader, name string, opts *SignOptions) (SignResult, error) {
	r := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return SignResult{}, err
		}
		defer f.Close()
		r = f
	}
	items, err := readItems(r, opts.Shingle)
	if err != nil {
		return SignResult{}, fmt.Errorf("read %s: %w", name, err)
	}
	mh, err := signature.NewMinHash(opts.NumPerm, opts.Seed)
	if err != nil {
		return SignResult{}, err
	}
	mh.UpdateStrings(items...)
	return SignResult{
		Source:    name,
		Items:     len(items),
		Signature: base64.StdEncoding.EncodeToString(signature.Encode(mh.Signature())),
	}, nil
}

func readItems(r io.Reader, shingle int) ([]string, error) {
	var (
		items []string
		words []string
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if shingle <= 0 {
			items = append(items, line)
			continue
		}
		words = append(words, strings.Fields(strings.ToLower(line))...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if shingle > 0 {
		if len(words) > 0 && len(words) < shingle {
			items = append(items, strings.Join(words, " "))
		}
		for i := 0; i+shingle <= len(words); i++ {
			items = append(items, strings.Join(words[i:i+shingle], " "))
		}
	}
	return items, nil
}
