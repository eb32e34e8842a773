package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mholt/archiver"
	ini "github.com/vaughan0/go-ini"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/gbm"
	"github.com/mannetroll/analysis/metrics"
	"github.com/mannetroll/analysis/pkg/errors"
)

// The archive layout:
//
//	model.ini          [info], [columns] and [domains] sections
//	parameters.json    the build parameters
//	domains/dNNN.txt   one level per line
//	trees/tCC_NNN.json tree NNN of class CC
const (
	mojoIni        = "model.ini"
	mojoParameters = "parameters.json"
	mojoDomains    = "domains"
	mojoTrees      = "trees"
	mojoVersion    = "1.00"
)

func domainFile(i int) string { return fmt.Sprintf("d%03d.txt", i) }

func treeFile(class, iter int) string { return fmt.Sprintf("t%02d_%03d.json", class, iter) }

// WriteMojo writes model as a zip archive at path, replacing any existing
// file.
func WriteMojo(model *gbm.Model, path string) error {
	staging, err := os.MkdirTemp("", "mojo")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.RemoveAll(staging)

	out := model.Output
	columns := append(append([]string(nil), out.Names...), model.Params.ResponseColumn)
	domains := append(append([][]string(nil), out.Domains...), out.ResponseDomain)

	var b strings.Builder
	b.WriteString("[info]\n")
	fmt.Fprintf(&b, "algorithm = gbm\n")
	fmt.Fprintf(&b, "mojo_version = %s\n", mojoVersion)
	fmt.Fprintf(&b, "model_key = %s\n", model.Key)
	fmt.Fprintf(&b, "category = %s\n", out.Category)
	fmt.Fprintf(&b, "distribution = %s\n", out.Distribution)
	fmt.Fprintf(&b, "n_features = %d\n", len(out.Names))
	fmt.Fprintf(&b, "n_classes = %d\n", max(len(out.ResponseDomain), 1))
	fmt.Fprintf(&b, "n_columns = %d\n", len(columns))
	fmt.Fprintf(&b, "n_trees = %d\n", len(out.Trees))
	fmt.Fprintf(&b, "n_trees_per_class = %d\n", len(out.InitF))
	fmt.Fprintf(&b, "seed = %d\n", out.Seed)
	fmt.Fprintf(&b, "init_f = %s\n", joinFloats(out.InitF))

	b.WriteString("\n[columns]\n")
	for i, c := range columns {
		fmt.Fprintf(&b, "%d = %s\n", i, c)
	}

	if err := os.Mkdir(filepath.Join(staging, mojoDomains), 0o755); err != nil {
		return errors.WithStack(err)
	}
	b.WriteString("\n[domains]\n")
	n := 0
	for i, d := range domains {
		if len(d) == 0 {
			continue
		}
		name := domainFile(n)
		n++
		fmt.Fprintf(&b, "%d = %d %s\n", i, len(d), name)
		content := strings.Join(d, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(staging, mojoDomains, name), []byte(content), 0o644); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := os.WriteFile(filepath.Join(staging, mojoIni), []byte(b.String()), 0o644); err != nil {
		return errors.WithStack(err)
	}

	params, err := model.Params.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(staging, mojoParameters), []byte(params), 0o644); err != nil {
		return errors.WithStack(err)
	}

	if err := os.Mkdir(filepath.Join(staging, mojoTrees), 0o755); err != nil {
		return errors.WithStack(err)
	}
	for iter, trees := range out.Trees {
		for _, tree := range trees {
			buf, err := json.Marshal(tree)
			if err != nil {
				return errors.Wrapf(err, "marshal tree %d of class %d", iter, tree.Class)
			}
			if err := os.WriteFile(filepath.Join(staging, mojoTrees, treeFile(tree.Class, iter)), buf, 0o644); err != nil {
				return errors.WithStack(err)
			}
		}
	}

	z := archiver.NewZip()
	z.OverwriteExisting = true
	sources := []string{
		filepath.Join(staging, mojoIni),
		filepath.Join(staging, mojoParameters),
		filepath.Join(staging, mojoDomains),
		filepath.Join(staging, mojoTrees),
	}
	if err := z.Archive(sources, path); err != nil {
		return errors.NewModelError("WriteMojo", "failed to write archive", errors.WithStack(err))
	}
	return nil
}

// LoadMojo reads an archive written by WriteMojo. The returned model scores
// like the exported one; training metrics and scoring history are not part
// of the archive.
func LoadMojo(path string) (*gbm.Model, error) {
	dir, err := os.MkdirTemp("", "mojo")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer os.RemoveAll(dir)

	if err := archiver.NewZip().Unarchive(path, dir); err != nil {
		return nil, errors.NewModelError("LoadMojo", "failed to open archive", errors.WithStack(err))
	}

	file, err := ini.LoadFile(filepath.Join(dir, mojoIni))
	if err != nil {
		return nil, errors.NewModelError("LoadMojo", "failed to read "+mojoIni, errors.WithStack(err))
	}
	info := file.Section("info")
	if info["algorithm"] != "gbm" {
		return nil, errors.NewModelError("LoadMojo", "unsupported algorithm "+info["algorithm"], nil)
	}

	m := &gbm.Model{Key: cluster.Key(info["model_key"])}
	buf, err := os.ReadFile(filepath.Join(dir, mojoParameters))
	if err != nil {
		return nil, errors.NewModelError("LoadMojo", "missing "+mojoParameters, errors.WithStack(err))
	}
	if err := json.Unmarshal(buf, &m.Params); err != nil {
		return nil, errors.NewModelError("LoadMojo", "failed to decode parameters", errors.WithStack(err))
	}

	out := &m.Output
	out.Category = metrics.ModelCategory(info["category"])
	out.Distribution = gbm.Distribution(info["distribution"])
	if out.InitF, err = parseFloats(info["init_f"]); err != nil {
		return nil, errors.NewModelError("LoadMojo", "bad init_f", err)
	}
	if out.Seed, err = strconv.ParseInt(info["seed"], 10, 64); err != nil {
		return nil, errors.NewModelError("LoadMojo", "bad seed", errors.WithStack(err))
	}
	ncols, err := strconv.Atoi(info["n_columns"])
	if err != nil || ncols < 1 {
		return nil, errors.NewModelError("LoadMojo", "bad n_columns", errors.WithStack(err))
	}
	ntrees, err := strconv.Atoi(info["n_trees"])
	if err != nil {
		return nil, errors.NewModelError("LoadMojo", "bad n_trees", errors.WithStack(err))
	}

	columns := file.Section("columns")
	domainSection := file.Section("domains")
	domains := make([][]string, ncols)
	names := make([]string, ncols)
	for i := 0; i < ncols; i++ {
		names[i] = columns[strconv.Itoa(i)]
		entry, ok := domainSection[strconv.Itoa(i)]
		if !ok {
			continue
		}
		fields := strings.Fields(entry)
		if len(fields) != 2 {
			return nil, errors.NewModelError("LoadMojo", "bad domain entry "+entry, nil)
		}
		buf, err := os.ReadFile(filepath.Join(dir, mojoDomains, fields[1]))
		if err != nil {
			return nil, errors.NewModelError("LoadMojo", "missing domain file", errors.WithStack(err))
		}
		domains[i] = strings.Split(strings.TrimSuffix(string(buf), "\n"), "\n")
	}
	out.Names = names[:ncols-1]
	out.Domains = domains[:ncols-1]
	out.ResponseDomain = domains[ncols-1]

	k := len(out.InitF)
	for iter := 0; iter < ntrees; iter++ {
		trees := make([]gbm.Tree, k)
		for c := 0; c < k; c++ {
			buf, err := os.ReadFile(filepath.Join(dir, mojoTrees, treeFile(c, iter)))
			if err != nil {
				return nil, errors.NewModelError("LoadMojo", "missing tree", errors.WithStack(err))
			}
			if err := json.Unmarshal(buf, &trees[c]); err != nil {
				return nil, errors.NewModelError("LoadMojo", "failed to decode tree", errors.WithStack(err))
			}
		}
		out.Trees = append(out.Trees, trees)
	}
	return m, nil
}

func joinFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func parseFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, errors.New("empty list")
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		out[i] = v
	}
	return out, nil
}
