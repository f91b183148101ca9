package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies LFS_* variables on top of the file layers.
// A malformed value is an error rather than being silently ignored.
func (c *Config) applyEnvOverrides() error {
	var err error
	str := func(name string, dst *string) {
		if v, ok := lookupEnv(name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookupEnv(name); ok && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s%s: invalid integer %q", envPrefix, name, v)
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookupEnv(name); ok && err == nil {
			f, perr := parseFloat64(v)
			if perr != nil {
				err = fmt.Errorf("%s%s: invalid number %q", envPrefix, name, v)
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookupEnv(name); ok && err == nil {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("%s%s: invalid duration %q", envPrefix, name, v)
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookupEnv(name); ok && err == nil {
			b, perr := strconv.ParseBool(v)
			if perr != nil {
				err = fmt.Errorf("%s%s: invalid boolean %q", envPrefix, name, v)
				return
			}
			*dst = b
		}
	}

	str("WATCH_ROOT", &c.Watch.Root)
	if v, ok := lookupEnv("EXTENSIONS"); ok {
		c.Watch.Extensions = splitList(v)
	}
	duration("DEBOUNCE", &c.Watch.Debounce)
	if v, ok := lookupEnv("MAX_FILE_SIZE"); ok && err == nil {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			err = fmt.Errorf("%sMAX_FILE_SIZE: invalid integer %q", envPrefix, v)
		} else {
			c.Watch.MaxFileSize = n
		}
	}

	float("BM25_K1", &c.Lexical.K1)
	float("BM25_B", &c.Lexical.B)

	str("VECTOR_BACKEND", &c.Vector.Backend)
	integer("DIMENSIONS", &c.Vector.Dimensions)
	integer("CHUNK_SIZE", &c.Vector.ChunkSize)
	integer("CHUNK_OVERLAP", &c.Vector.ChunkOverlap)
	float("MIN_SIMILARITY", &c.Vector.MinSimilarity)

	str("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	str("EMBEDDINGS_MODEL", &c.Embeddings.Model)
	str("EMBEDDINGS_ENDPOINT", &c.Embeddings.Endpoint)

	integer("MAX_CANDIDATES", &c.Search.MaxCandidates)
	integer("FINAL_RESULTS", &c.Search.FinalResults)
	integer("RRF_K", &c.Search.RRFK)
	duration("SEARCH_TIMEOUT", &c.Search.Timeout)
	float("LEXICAL_WEIGHT", &c.Search.LexicalWeight)
	float("VECTOR_WEIGHT", &c.Search.VectorWeight)

	boolean("CACHE_ENABLED", &c.Cache.Enabled)
	integer("CACHE_SIZE", &c.Cache.Size)
	duration("CACHE_TTL", &c.Cache.TTL)

	str("DATA_DIR", &c.Persist.DataDir)
	duration("AUTOSAVE_INTERVAL", &c.Persist.AutosaveInterval)
	integer("WORKERS", &c.Workers.Size)

	str("TRANSPORT", &c.Server.Transport)
	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)

	return err
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// splitList splits a comma or space separated list, dropping empties.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
