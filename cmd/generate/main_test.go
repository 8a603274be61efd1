package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/stretchr/testify/suite"
)

type GenerateCmdTestSuite struct {
	suite.Suite
	tempDir string
}

func (suite *GenerateCmdTestSuite) SetupTest() {
	suite.tempDir = suite.T().TempDir()
}

func TestGenerateCmdTestSuite(t *testing.T) {
	suite.Run(t, new(GenerateCmdTestSuite))
}

func (suite *GenerateCmdTestSuite) TestRunWritesSchemaAndSample() {
	dir := filepath.Join(suite.tempDir, "config")
	suite.Require().NoError(run(dir))

	schema, err := os.ReadFile(filepath.Join(dir, config.SchemaName))
	suite.Require().NoError(err)
	suite.Contains(string(schema), `"trailing"`)
	suite.Contains(string(schema), `"guards"`)

	sample, err := os.ReadFile(filepath.Join(dir, sampleConfigName))
	suite.Require().NoError(err)
	suite.Contains(string(sample), "# yaml-language-server: $schema="+config.SchemaName)
}

func (suite *GenerateCmdTestSuite) TestSampleConfigLoadsBack() {
	dir := filepath.Join(suite.tempDir, "config")
	suite.Require().NoError(run(dir))

	cfg, err := config.Load(filepath.Join(dir, sampleConfigName))
	suite.Require().NoError(err)
	suite.Equal(config.Default(), cfg)
}

func (suite *GenerateCmdTestSuite) TestSampleConfigNotOverwritten() {
	samplePath := filepath.Join(suite.tempDir, "existing.yaml")
	suite.Require().NoError(os.WriteFile(samplePath, []byte("existing content"), 0644))

	suite.Require().NoError(generateSampleConfig(config.Default(), samplePath, "schema.json"))

	content, err := os.ReadFile(samplePath)
	suite.Require().NoError(err)
	suite.Equal("existing content", string(content))
}

func (suite *GenerateCmdTestSuite) TestGenerateSchemaFileInvalidPath() {
	blocker := filepath.Join(suite.tempDir, "file")
	suite.Require().NoError(os.WriteFile(blocker, []byte("x"), 0644))

	err := generateSchemaFile(filepath.Join(blocker, "schema.json"))
	suite.Require().Error(err)
	suite.Contains(err.Error(), "failed to")
}
