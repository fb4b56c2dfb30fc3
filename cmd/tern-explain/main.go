// Copyright 2024 TernDB Corp. All rights reserved.
/*
tern-explain loads a collection fixture, runs runner selection for a query
and prints the chosen plan. It exists to inspect planner decisions from
the outside.
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson"

	tern "github.com/terndb/tern"
	"github.com/terndb/tern/logger"
	"github.com/terndb/tern/query"
	"github.com/terndb/tern/query/planner"
)

// fixture is the JSON description of a collection and a query against it.
type fixture struct {
	NS      string            `json:"ns"`
	Capped  bool              `json:"capped"`
	Indexes []fixtureIndex    `json:"indexes"`
	Docs    []json.RawMessage `json:"docs"`

	Filter     json.RawMessage `json:"filter"`
	Sort       json.RawMessage `json:"sort"`
	Projection json.RawMessage `json:"projection"`
	Hint       json.RawMessage `json:"hint"`
	Skip       int             `json:"skip"`
	Limit      int             `json:"limit"`

	Count    bool   `json:"count"`
	Distinct string `json:"distinct"`
}

type fixtureIndex struct {
	Name     string          `json:"name"`
	Key      json.RawMessage `json:"key"`
	Multikey bool            `json:"multikey"`
	Sparse   bool            `json:"sparse"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var runQuery bool

	cmd := &cobra.Command{
		Use:   "tern-explain <fixture.json>",
		Short: "Explain runner selection for a query fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := tern.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if viper.GetBool("no-table-scan") {
				cfg.NoTableScan = true
			}
			return explain(cmd.OutOrStdout(), args[0], cfg, runQuery)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	cmd.Flags().BoolVar(&runQuery, "run", false, "also execute the runner and print its results")
	cmd.Flags().Bool("no-table-scan", false, "forbid collection scans")
	if err := viper.BindPFlag("no-table-scan", cmd.Flags().Lookup("no-table-scan")); err != nil {
		panic(err)
	}
	return cmd
}

func explain(out io.Writer, path string, cfg *tern.Config, runQuery bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return err
	}

	collOpts := []tern.CollectionOption{}
	if fx.Capped {
		collOpts = append(collOpts, tern.OptCollectionCapped())
	}
	coll := tern.NewCollection(fx.NS, collOpts...)
	for _, ix := range fx.Indexes {
		key, err := docFromJSON(ix.Key)
		if err != nil {
			return err
		}
		if err := coll.Catalog().AddIndex(&tern.IndexDescriptor{
			Name:       ix.Name,
			KeyPattern: key,
			Multikey:   ix.Multikey,
			Sparse:     ix.Sparse,
		}); err != nil {
			return err
		}
	}
	for _, d := range fx.Docs {
		doc, err := docFromJSON(d)
		if err != nil {
			return err
		}
		if err := coll.Insert(doc); err != nil {
			return err
		}
	}

	log := logger.NopLogger
	if cfg.Verbose {
		log = logger.NewVerboseLogger(os.Stderr)
	}
	selector := planner.NewSelector(
		planner.OptSelectorLogger(log),
		planner.OptSelectorStats(statsForConfig(cfg)),
		planner.OptSelectorSettings(cfg.Settings()),
	)

	runner, err := selectRunner(selector, coll, &fx)
	if err != nil {
		return err
	}
	reg := tern.RegisterRunner(coll, runner)
	defer reg.Close()

	report := map[string]interface{}{
		"runner": runner.Kind().String(),
		"plan":   runner.Plan(),
	}
	if runQuery {
		docs, err := drain(runner)
		if err != nil {
			return err
		}
		report["results"] = docs
	}
	enc, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return err
	}
	_, err = out.Write(append(enc, '\n'))
	return err
}

func selectRunner(selector *planner.Selector, coll *tern.Collection, fx *fixture) (planner.Runner, error) {
	filter, err := docFromJSON(fx.Filter)
	if err != nil {
		return nil, err
	}

	if fx.Count {
		hint, err := docFromJSON(fx.Hint)
		if err != nil {
			return nil, err
		}
		return selector.GetRunnerCount(coll, filter, hint)
	}
	if fx.Distinct != "" {
		return selector.GetRunnerDistinct(coll, filter, fx.Distinct)
	}

	sortSpec, err := docFromJSON(fx.Sort)
	if err != nil {
		return nil, err
	}
	proj, err := docFromJSON(fx.Projection)
	if err != nil {
		return nil, err
	}
	hint, err := docFromJSON(fx.Hint)
	if err != nil {
		return nil, err
	}
	cq, err := query.Canonicalize(&query.LiteParsedQuery{
		NS:         fx.NS,
		Filter:     filter,
		Sort:       sortSpec,
		Projection: proj,
		Hint:       hint,
		Skip:       fx.Skip,
		Limit:      fx.Limit,
	})
	if err != nil {
		return nil, err
	}
	return selector.GetRunner(coll, cq, 0)
}

func drain(runner planner.Runner) ([]string, error) {
	var docs []string
	ctx := context.Background()
	for {
		doc, err := runner.Next(ctx)
		if err == planner.ErrNoMoreRows {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, fmt.Sprintf("%v", doc))
	}
}

// statsForConfig picks the stats backend the config names.
func statsForConfig(cfg *tern.Config) tern.StatsClient {
	if cfg.Metrics == "prometheus" {
		return tern.NewPrometheusStatsClient(prometheus.DefaultRegisterer)
	}
	return tern.NopStatsClient
}

// docFromJSON parses a JSON object into an ordered document. A missing
// value parses as an empty document.
func docFromJSON(raw json.RawMessage) (bson.D, error) {
	if len(raw) == 0 {
		return bson.D{}, nil
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
