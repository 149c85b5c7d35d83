package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thesyncim/webcodecs"
	"gopkg.in/yaml.v3"
)

type providerListing struct {
	Name      string `json:"name" yaml:"name"`
	License   string `json:"license" yaml:"license"`
	Native    bool   `json:"native" yaml:"native"`
	Available bool   `json:"available" yaml:"available"`
}

type codecListing struct {
	Codec     string   `json:"codec" yaml:"codec"`
	Providers []string `json:"providers" yaml:"providers"`
}

type capabilities struct {
	Providers []providerListing `json:"providers" yaml:"providers"`
	Decoders  []codecListing    `json:"decoders" yaml:"decoders"`
	Encoders  []codecListing    `json:"encoders" yaml:"encoders"`
}

func newCodecsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codecs",
		Short: "List the codecs and providers available in this build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeCapabilities(cmd.OutOrStdout(), v.GetString("format"), listCapabilities(webcodecs.DefaultRegistry()))
		},
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml or json")
	return cmd
}

func listCapabilities(r *webcodecs.Registry) capabilities {
	var c capabilities
	for _, p := range webcodecs.Providers() {
		c.Providers = append(c.Providers, providerListing{
			Name:      p.String(),
			License:   p.License().String(),
			Native:    p.Native(),
			Available: p.Available(),
		})
	}
	for _, codec := range r.DecoderCodecs() {
		c.Decoders = append(c.Decoders, codecListing{Codec: codec, Providers: providerNames(r.DecoderProviders(codec))})
	}
	for _, codec := range r.EncoderCodecs() {
		c.Encoders = append(c.Encoders, codecListing{Codec: codec, Providers: providerNames(r.EncoderProviders(codec))})
	}
	return c
}

func providerNames(providers []webcodecs.Provider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.String()
	}
	return names
}

func writeCapabilities(w io.Writer, format string, c capabilities) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
