package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/goliatone/go-connections/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// connectionView is the printable form of a connection. Secrets are
// reported as present or absent, never printed.
type connectionView struct {
	ProviderID      string `json:"provider_id" yaml:"provider_id"`
	ProviderUserID  string `json:"provider_user_id" yaml:"provider_user_id"`
	Capability      string `json:"capability" yaml:"capability"`
	DisplayName     string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	ProfileURL      string `json:"profile_url,omitempty" yaml:"profile_url,omitempty"`
	ImageURL        string `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	HasAccessToken  bool   `json:"has_access_token" yaml:"has_access_token"`
	HasSecret       bool   `json:"has_secret" yaml:"has_secret"`
	HasRefreshToken bool   `json:"has_refresh_token" yaml:"has_refresh_token"`
	ExpireTime      *int64 `json:"expire_time,omitempty" yaml:"expire_time,omitempty"`
}

func viewOf(connection core.Connection) connectionView {
	data := connection.Data()
	return connectionView{
		ProviderID:      data.ProviderID,
		ProviderUserID:  data.ProviderUserID,
		Capability:      connection.Capability().String(),
		DisplayName:     deref(data.DisplayName),
		ProfileURL:      deref(data.ProfileURL),
		ImageURL:        deref(data.ImageURL),
		HasAccessToken:  data.AccessToken != nil,
		HasSecret:       data.Secret != nil,
		HasRefreshToken: data.RefreshToken != nil,
		ExpireTime:      data.ExpireTime,
	}
}

func viewsOf(connections []core.Connection) []connectionView {
	views := make([]connectionView, 0, len(connections))
	for _, connection := range connections {
		views = append(views, viewOf(connection))
	}
	return views
}

func printConnections(out io.Writer, format string, connections []core.Connection) error {
	views := viewsOf(connections)
	switch format {
	case outputJSON:
		return printJSON(out, views)
	case outputYAML:
		return yaml.NewEncoder(out).Encode(views)
	}
	if len(views) == 0 {
		_, err := fmt.Fprintln(out, "no connections")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tPROVIDER USER\tCAPABILITY\tDISPLAY NAME\tTOKEN")
	for _, view := range views {
		token := "-"
		if view.HasAccessToken {
			token = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			view.ProviderID, view.ProviderUserID, view.Capability, view.DisplayName, token)
	}
	return w.Flush()
}

func printStrings(out io.Writer, format string, values []string) error {
	if values == nil {
		values = []string{}
	}
	switch format {
	case outputJSON:
		return printJSON(out, values)
	case outputYAML:
		return yaml.NewEncoder(out).Encode(values)
	}
	for _, value := range values {
		if _, err := fmt.Fprintln(out, value); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// printCounters writes every counter sample gathered from registry as
// name{label="value"} total, sorted by series.
func printCounters(out io.Writer, registry prom.Gatherer) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, family := range families {
		if family.GetType().String() != "COUNTER" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", pair.GetName(), pair.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g",
				family.GetName(), strings.Join(labels, ","), metric.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
