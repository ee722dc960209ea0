package federation

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Field contracts for the canonical field maps the dialects produce. A
// mapped record is validated against its contract before the upsert
// transformer touches the store.

const authorSchemaJSON = `{
	"type": "object",
	"required": ["external_url", "display_name"],
	"properties": {
		"external_url": {"type": "string", "minLength": 1},
		"display_name": {"type": "string", "minLength": 1},
		"profile_image": {"type": "string"},
		"github": {"type": "string"}
	}
}`

const postSchemaJSON = `{
	"type": "object",
	"required": ["external_url", "content_type"],
	"properties": {
		"external_url": {"type": "string", "minLength": 1},
		"title": {"type": "string"},
		"source": {"type": "string"},
		"origin": {"type": "string"},
		"description": {"type": "string"},
		"content": {"type": "string"},
		"content_type": {"type": "string", "minLength": 1},
		"published": {"type": "string"},
		"visibility": {"type": "string"},
		"unlisted": {"type": "boolean"}
	}
}`

const commentSchemaJSON = `{
	"type": "object",
	"required": ["comment", "content_type"],
	"properties": {
		"external_url": {"type": "string"},
		"comment": {"type": "string", "minLength": 1},
		"content_type": {"type": "string", "minLength": 1},
		"published": {"type": "string"}
	}
}`

const likeSchemaJSON = `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"}
	}
}`

type fieldContracts struct {
	author  *jsonschema.Schema
	post    *jsonschema.Schema
	comment *jsonschema.Schema
	like    *jsonschema.Schema
}

var contracts = mustCompileContracts()

func mustCompileContracts() fieldContracts {
	compiler := jsonschema.NewCompiler()
	compile := func(name, source string) *jsonschema.Schema {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
		if err != nil {
			panic(fmt.Sprintf("bad %s contract: %v", name, err))
		}
		url := "urn:fedbridge:" + name
		if err := compiler.AddResource(url, doc); err != nil {
			panic(fmt.Sprintf("bad %s contract: %v", name, err))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("bad %s contract: %v", name, err))
		}
		return schema
	}
	return fieldContracts{
		author:  compile("author", authorSchemaJSON),
		post:    compile("post", postSchemaJSON),
		comment: compile("comment", commentSchemaJSON),
		like:    compile("like", likeSchemaJSON),
	}
}

func validateFields(entity string, schema *jsonschema.Schema, fields Wire) error {
	if err := schema.Validate(map[string]any(fields)); err != nil {
		return validationErrorf(entity, "field contract: %v", err)
	}
	return nil
}
