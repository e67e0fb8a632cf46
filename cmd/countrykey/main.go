// Command countrykey resolves country text, edits the persisted country
// mapping and verifies joins against GeoJSON feature files.
//
// Usage:
//
//	countrykey [-dir DIR] [-aliases FILE] [-seed FILE] <command> [args]
//
// Commands:
//
//	inspect TEXT...          show the code points and normalized forms of TEXT
//	resolve TEXT...          resolve TEXT to ISO2, suggesting aliases on a miss
//	feature GEOJSON          resolve every feature of a GeoJSON file
//	trace TEXT [GEOJSON]     show each link of the resolution of TEXT
//	diagnose                 check every legacy code; exits 1 on failure
//	show                     list the persisted mapping
//	map RAW ISO2 [TOKEN [LABEL]]
//	                         bind RAW to ISO2 (token defaults to iso2_<code>)
//	unmap RAW                remove the binding of RAW
//	aggregate FILE           group the lines of FILE by country ("-" for stdin)
//	join FILE GEOJSON        aggregate FILE and join it against GEOJSON
//	reset                    delete the persisted mapping and reload the seed
//
// Settings may also come from COUNTRYKEY_DIR, COUNTRYKEY_ALIASES and
// COUNTRYKEY_SEED, or from a .env file in the working directory.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/andreiashu/countrykey"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

func main() {
	loadEnv(".env")
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app carries what a subcommand needs.
type app struct {
	cfg    *config
	reg    *countrykey.Registry
	store  countrykey.Store
	stdin  io.Reader
	stdout io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("countrykey", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, rest, err := parseConfig(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(rest) == 0 {
		fmt.Fprintln(stderr, "Error: missing command")
		fs.Usage()
		return exitUsage
	}

	opts, err := cfg.registryOptions()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFail
	}
	a := &app{
		cfg:    cfg,
		reg:    countrykey.NewRegistry(opts...),
		store:  countrykey.NewFileStore(cfg.Dir),
		stdin:  stdin,
		stdout: stdout,
	}

	code, err := a.dispatch(rest[0], rest[1:])
	if errors.Is(err, errUsage) {
		if err == errUsage {
			fmt.Fprintf(stderr, "Error: bad arguments for %q\n", rest[0])
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		fs.Usage()
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFail
	}
	return code
}

func (a *app) dispatch(cmd string, args []string) (int, error) {
	switch cmd {
	case "inspect":
		return a.inspect(args)
	case "resolve":
		return a.resolve(args)
	case "feature":
		return a.feature(args)
	case "trace":
		return a.trace(args)
	case "diagnose":
		return a.diagnose()
	case "show":
		return a.show()
	case "map":
		return a.mapAlias(args)
	case "unmap":
		return a.unmap(args)
	case "aggregate":
		return a.aggregate(args)
	case "join":
		return a.join(args)
	case "reset":
		return a.reset()
	default:
		return exitUsage, fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func (a *app) inspect(args []string) (int, error) {
	if len(args) == 0 {
		return exitUsage, errUsage
	}
	out := make([]countrykey.KeyInspection, 0, len(args))
	for _, arg := range args {
		out = append(out, countrykey.Inspect(arg))
	}
	return exitOK, a.emit(out)
}

type resolution struct {
	Input       string                  `json:"input"`
	ISO2        string                  `json:"iso2"`
	DisplayName string                  `json:"displayName,omitempty"`
	Suggestions []countrykey.Suggestion `json:"suggestions,omitempty"`
}

func (a *app) resolve(args []string) (int, error) {
	if len(args) == 0 {
		return exitUsage, errUsage
	}
	out := make([]resolution, 0, len(args))
	for _, arg := range args {
		res := resolution{Input: arg, ISO2: a.reg.ResolveToIso2(arg)}
		if res.ISO2 != "" {
			res.DisplayName = a.reg.DisplayName(res.ISO2)
		} else {
			res.Suggestions = a.reg.Suggest(arg, 2, 5)
		}
		out = append(out, res)
	}
	return exitOK, a.emit(out)
}

type featureRow struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	ISO2  string `json:"iso2"`
}

func (a *app) feature(args []string) (int, error) {
	if len(args) != 1 {
		return exitUsage, errUsage
	}
	features, err := readFeatures(args[0])
	if err != nil {
		return exitFail, err
	}
	out := make([]featureRow, 0, len(features))
	for i := range features {
		out = append(out, featureRow{
			Index: i,
			ID:    features[i].ID.String(),
			ISO2:  a.reg.ResolveFeatureToIso2(&features[i]),
		})
	}
	return exitOK, a.emit(out)
}

func (a *app) trace(args []string) (int, error) {
	if len(args) < 1 || len(args) > 2 {
		return exitUsage, errUsage
	}
	m, err := a.load()
	if err != nil {
		return exitFail, err
	}
	var target *countrykey.Feature
	if len(args) == 2 {
		features, err := readFeatures(args[1])
		if err != nil {
			return exitFail, err
		}
		iso2 := countrykey.ResolveRecord(args[0], m, a.reg)
		for i := range features {
			if iso2 != "" && a.reg.ResolveFeatureToIso2(&features[i]) == iso2 {
				target = &features[i]
				break
			}
		}
	}
	return exitOK, a.emit(countrykey.Trace(args[0], m, a.reg, target))
}

func (a *app) diagnose() (int, error) {
	rows := countrykey.DiagnoseLegacyCodes(a.reg)
	if err := a.emit(rows); err != nil {
		return exitFail, err
	}
	for _, row := range rows {
		if !row.OK {
			return exitFail, nil
		}
	}
	return exitOK, nil
}

func (a *app) show() (int, error) {
	m, err := a.load()
	if err != nil {
		return exitFail, err
	}
	return exitOK, a.emit(m.Rows())
}

func (a *app) mapAlias(args []string) (int, error) {
	if len(args) < 2 || len(args) > 4 {
		return exitUsage, errUsage
	}
	entry := countrykey.MappingEntry{RawCountry: args[0], ISO2: args[1]}
	if len(args) > 2 {
		entry.Token = args[2]
	} else {
		entry.Token = countrykey.TokenFromIso2(a.reg.ResolveToIso2(args[1]))
	}
	if len(args) > 3 {
		entry.DisplayName = args[3]
	}

	m, err := a.load()
	if err != nil {
		return exitFail, err
	}
	if !m.Upsert(entry, a.reg) {
		return exitFail, fmt.Errorf("cannot map %q to %q: empty text or unknown country", args[0], args[1])
	}
	if m, err = countrykey.SaveMapping(a.store, m, a.reg); err != nil {
		return exitFail, err
	}
	return exitOK, a.emit(m.ResolveAlias(args[0]))
}

func (a *app) unmap(args []string) (int, error) {
	if len(args) != 1 {
		return exitUsage, errUsage
	}
	m, err := a.load()
	if err != nil {
		return exitFail, err
	}
	if !m.DeleteAlias(args[0]) {
		return exitFail, fmt.Errorf("no mapping for %q", args[0])
	}
	if _, err := countrykey.SaveMapping(a.store, m, a.reg); err != nil {
		return exitFail, err
	}
	return exitOK, nil
}

func (a *app) aggregate(args []string) (int, error) {
	if len(args) != 1 {
		return exitUsage, errUsage
	}
	agg, err := a.aggregateFile(args[0])
	if err != nil {
		return exitFail, err
	}
	return exitOK, a.emit(agg)
}

func (a *app) join(args []string) (int, error) {
	if len(args) != 2 {
		return exitUsage, errUsage
	}
	agg, err := a.aggregateFile(args[0])
	if err != nil {
		return exitFail, err
	}
	features, err := readFeatures(args[1])
	if err != nil {
		return exitFail, err
	}
	return exitOK, a.emit(countrykey.JoinFeatures(agg, features, a.reg))
}

func (a *app) reset() (int, error) {
	seed, err := a.cfg.seedMapping()
	if err != nil {
		return exitFail, err
	}
	report, _, err := countrykey.ResetMapping(a.store, a.reg, seed)
	if err != nil {
		return exitFail, err
	}
	if err := a.emit(report); err != nil {
		return exitFail, err
	}
	if len(report.Failed) > 0 {
		return exitFail, nil
	}
	return exitOK, nil
}

func (a *app) load() (*countrykey.MappingModel, error) {
	seed, err := a.cfg.seedMapping()
	if err != nil {
		return nil, err
	}
	return countrykey.LoadMapping(a.store, a.reg, seed)
}

func (a *app) aggregateFile(path string) (*countrykey.Aggregation, error) {
	lines, err := a.readLines(path)
	if err != nil {
		return nil, err
	}
	m, err := a.load()
	if err != nil {
		return nil, err
	}
	return countrykey.Aggregate(lines, m, a.reg), nil
}

func (a *app) readLines(path string) ([]string, error) {
	r := a.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

func readFeatures(path string) ([]countrykey.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	features, err := countrykey.ParseFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return features, nil
}

func (a *app) emit(v any) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", data)
	return err
}
