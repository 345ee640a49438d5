package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes the top level of a spec document: exactly one module
// block is expected (a document with more or fewer is rejected after
// decoding, not by the grammar itself, so the error message can name the
// actual count).
type fileRoot struct {
	Modules []*moduleBlock `hcl:"module,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type moduleBlock struct {
	Name     string          `hcl:"name,label"`
	Comment  string          `hcl:"comment,optional"`
	Typedefs []*typedefBlock `hcl:"typedef,block"`
	Funcdefs []*funcdefBlock `hcl:"funcdef,block"`
	Remain   hcl.Body        `hcl:",remain"`
}

type typedefBlock struct {
	Name string         `hcl:"name,label"`
	Type hcl.Expression `hcl:"type"`
}

type funcdefBlock struct {
	Name    string        `hcl:"name,label"`
	Comment string        `hcl:"comment,optional"`
	Params  []*paramBlock `hcl:"param,block"`
	Returns []*paramBlock `hcl:"return,block"`
}

type paramBlock struct {
	Name string         `hcl:"name,label"`
	Type hcl.Expression `hcl:"type"`
}
