/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/NVIDIA/fabricgen/pkg/infrahub"
)

const (
	DefaultBranch = "main"
	tokenKey      = "token"
)

type Config struct {
	HTTP                    Endpoint          `yaml:"http"`
	RequestAggregationDelay time.Duration     `yaml:"request_aggregation_delay"`
	SSL                     *SSL              `yaml:"ssl,omitempty"`
	Infrahub                Infrahub          `yaml:"infrahub"`
	BatchSize               *int              `yaml:"batch_size,omitempty"`
	SimulationModelPath     string            `yaml:"simulation_model_path,omitempty"`
	CredsPath               *string           `yaml:"credentials_path,omitempty"`
	Env                     map[string]string `yaml:"env"`

	// derived
	Credentials map[string]string
}

type Endpoint struct {
	Port int  `yaml:"port"`
	SSL  bool `yaml:"ssl"`
}

type SSL struct {
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
	CaCert string `yaml:"ca_cert"`
}

// Infrahub is the connection to the graph platform
type Infrahub struct {
	Address            string        `yaml:"address"`
	DefaultBranch      string        `yaml:"default_branch"`
	Timeout            time.Duration `yaml:"timeout"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

func NewFromFile(fname string) (*Config, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", fname, err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", fname, err)
	}

	if err = cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.HTTP.Port == 0 {
		return fmt.Errorf("port is not set")
	}

	if cfg.RequestAggregationDelay == 0 {
		return fmt.Errorf("request_aggregation_delay is not set")
	}

	switch {
	case len(cfg.Infrahub.Address) != 0 && len(cfg.SimulationModelPath) != 0:
		return fmt.Errorf("infrahub address and simulation_model_path are mutually exclusive")
	case len(cfg.Infrahub.Address) == 0 && len(cfg.SimulationModelPath) == 0:
		return fmt.Errorf("neither infrahub address nor simulation_model_path is set")
	case len(cfg.SimulationModelPath) != 0:
		if err := validateFile(cfg.SimulationModelPath, "simulation model"); err != nil {
			return err
		}
	}

	if cfg.BatchSize != nil && *cfg.BatchSize <= 0 {
		return fmt.Errorf("invalid batch_size %d", *cfg.BatchSize)
	}

	if len(cfg.Infrahub.DefaultBranch) == 0 {
		cfg.Infrahub.DefaultBranch = DefaultBranch
	}

	if cfg.HTTP.SSL {
		if cfg.SSL == nil {
			return fmt.Errorf("missing ssl section")
		}
		if err := validateFile(cfg.SSL.Cert, "server certificate"); err != nil {
			return err
		}
		if err := validateFile(cfg.SSL.Key, "server key"); err != nil {
			return err
		}
		if err := validateFile(cfg.SSL.CaCert, "CA certificate"); err != nil {
			return err
		}
	}

	return cfg.readCredentials()
}

// ClientConfig returns the settings of the platform client
func (cfg *Config) ClientConfig() *infrahub.Config {
	return &infrahub.Config{
		Address:            cfg.Infrahub.Address,
		Token:              cfg.Credentials[tokenKey],
		Timeout:            cfg.Infrahub.Timeout,
		InsecureSkipVerify: cfg.Infrahub.InsecureSkipVerify,
		RequestsPerSecond:  cfg.Infrahub.RequestsPerSecond,
	}
}

func (cfg *Config) UpdateEnv() (err error) {
	for env, val := range cfg.Env {
		if env == "PATH" { // special case for PATH env var
			err = os.Setenv("PATH", fmt.Sprintf("%s:%s", os.Getenv("PATH"), val))
		} else {
			err = os.Setenv(env, val)
		}
		if err != nil {
			return fmt.Errorf("failed to set %q environment variable: %v", env, err)
		}
		klog.Infof("Updated env %s=%s", env, os.Getenv(env))
	}

	return
}

func (cfg *Config) readCredentials() error {
	if cfg.CredsPath == nil {
		return nil
	}
	if err := validateFile(*cfg.CredsPath, "API credentials"); err != nil {
		return err
	}

	file, err := os.Open(*cfg.CredsPath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, &cfg.Credentials)
}

func validateFile(name, description string) error {
	if len(name) == 0 {
		return fmt.Errorf("missing filename for %s", description)
	}
	if _, err := os.Stat(name); err != nil {
		return fmt.Errorf("failed to validate %s: %v", name, err)
	}
	return nil
}
