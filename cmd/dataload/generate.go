package main

import (
	"flag"
	"os"

	"github.com/subsurface-tools/dataload/pkg/manifest"
)

func cmdGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	csvPath := fs.String("csv", "", "input CSV file (first row is the header)")
	templatePath := fs.String("template", "", "JSON template file")
	outputDir := fs.String("output", "output", "output directory for generated manifests")
	schemaDir := fs.String("schemas", "", "directory of JSON schemas for validation")
	nsName := fs.String("namespace-name", "", "namespace placeholder to rewrite (e.g. {{NAMESPACE}})")
	nsValue := fs.String("namespace-value", "", "replacement value for the namespace placeholder")
	required := fs.String("required", "", "required-fields template as inline JSON")
	requiredFile := fs.String("required-file", "", "required-fields template file")
	arrayParent := fs.String("array-parent", "", "dotted path wrapping each manifest in an array")
	objectParent := fs.String("object-parent", "", "dotted path wrapping each manifest as an object")
	kindParent := fs.String("kind-parent", "", "kind set on the wrapping document")
	groupFile := fs.String("group-filename", "", "aggregate all manifests into one file with this name")
	legalTag := fs.String("legal-tag", "", "legal tag stamped on each manifest")
	aclViewer := fs.String("acl-viewer", "", "ACL viewer group")
	aclOwner := fs.String("acl-owner", "", "ACL owner group")
	fs.Parse(args)

	logger := newLogger()
	if *csvPath == "" || *templatePath == "" {
		logger.Error("both --csv and --template are required")
		os.Exit(1)
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Error("create output directory", "error", err)
		os.Exit(1)
	}

	opts := manifest.Options{
		SchemaDir:      *schemaDir,
		NamespaceName:  *nsName,
		NamespaceValue: *nsValue,
		RequiredJSON:   *required,
		RequiredFile:   *requiredFile,
		ArrayParent:    *arrayParent,
		ObjectParent:   *objectParent,
		KindParent:     *kindParent,
		GroupFile:      *groupFile,
		LegalTag:       *legalTag,
		ACLViewer:      *aclViewer,
		ACLOwner:       *aclOwner,
	}

	res, err := manifest.Generate(*csvPath, *templatePath, *outputDir, opts, logger)
	if err != nil {
		logger.Error("generation failed", "error", err)
		os.Exit(1)
	}
	if res.FailedRows > 0 {
		logger.Warn("some rows could not be processed", "failed", res.FailedRows)
	}
}
