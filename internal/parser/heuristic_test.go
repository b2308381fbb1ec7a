package parser

import (
	"testing"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMarkers(t *testing.T) {
	tests := []struct {
		name    string
		family  language.Family
		content string
		want    []Marker
	}{
		{
			name:   "python",
			family: language.FamilyPython,
			content: "import os\n\nclass Store:\n    def get(self):\n        pass\n\nasync def main():\n    pass\n",
			want: []Marker{
				{Line: 3, Indent: 0, Kind: types.KindClass, Name: "Store"},
				{Line: 4, Indent: 4, Kind: types.KindFunction, Name: "get"},
				{Line: 7, Indent: 0, Kind: types.KindFunction, Name: "main"},
			},
		},
		{
			name:    "go method",
			family:  language.FamilyCLike,
			content: "func (s *Server) Start(ctx context.Context) error {\n\treturn nil\n}\n",
			want: []Marker{
				{Line: 1, Kind: types.KindMethod, Name: "Start", Parent: "Server"},
			},
		},
		{
			name:    "javascript arrow and function",
			family:  language.FamilyCLike,
			content: "export const load = async (id) => {\n}\nfunction save(x) {\n}\n",
			want: []Marker{
				{Line: 1, Kind: types.KindFunction, Name: "load"},
				{Line: 3, Kind: types.KindFunction, Name: "save"},
			},
		},
		{
			name:    "rust",
			family:  language.FamilyCLike,
			content: "pub struct Cache {}\n\npub async fn fetch(url: &str) -> Result<()> {\n}\n",
			want: []Marker{
				{Line: 1, Kind: types.KindClass, Name: "Cache"},
				{Line: 3, Kind: types.KindFunction, Name: "fetch"},
			},
		},
		{
			name:    "ruby",
			family:  language.FamilyRuby,
			content: "module Billing\n  def self.charge!(amount)\n  end\nend\n",
			want: []Marker{
				{Line: 1, Kind: types.KindClass, Name: "Billing"},
				{Line: 2, Indent: 2, Kind: types.KindFunction, Name: "charge!"},
			},
		},
		{
			name:    "control flow is not a declaration",
			family:  language.FamilyCLike,
			content: "if (ready) {\n}\n",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindMarkers(tt.content, tt.family)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Line, got[i].Line)
				assert.Equal(t, tt.want[i].Indent, got[i].Indent)
				assert.Equal(t, tt.want[i].Kind, got[i].Kind)
				assert.Equal(t, tt.want[i].Name, got[i].Name)
				assert.Equal(t, tt.want[i].Parent, got[i].Parent)
			}
		})
	}
}

func TestIsImportLine(t *testing.T) {
	assert.True(t, IsImportLine("from os import path", language.FamilyPython))
	assert.True(t, IsImportLine("import React from 'react'", language.FamilyCLike))
	assert.True(t, IsImportLine("use std::io;", language.FamilyCLike))
	assert.True(t, IsImportLine("#include <stdio.h>", language.FamilyCLike))
	assert.True(t, IsImportLine("require 'json'", language.FamilyRuby))
	assert.False(t, IsImportLine("x = important()", language.FamilyPython))
}

func TestFirstSignature(t *testing.T) {
	m, ok := FirstSignature("# helper\n\ndef parse_config(path):\n    return {}\n")
	require.True(t, ok)
	assert.Equal(t, "parse_config", m.Name)
	assert.Equal(t, "def parse_config(path)", m.Signature)
	assert.Equal(t, 3, m.Line)

	_, ok = FirstSignature("just some words\n")
	assert.False(t, ok)
}

func TestDeclaredNames(t *testing.T) {
	content := "class A:\n    def run(self):\n        pass\n    def run(self):\n        pass\n"
	assert.Equal(t, []string{"A", "run"}, DeclaredNames(content, language.FamilyPython))
}
