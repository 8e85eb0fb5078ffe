// Package svi carries the CDC Social Vulnerability Index variable catalog
// and merges SVI attribute tables into tract layers.
package svi

import "github.com/food-access/svimap/internal/geodata"

// Variable describes one selectable SVI variable.
type Variable struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Derived bool   `json:"derived,omitempty"`
}

// Catalog lists the variables exposed to map front ends, in display order.
var Catalog = []Variable{
	{Key: "E_TOTPOP", Label: "Total Population"},
	{Key: "E_POV150", Label: "Population Below 150% of Poverty Level"},
	{Key: "E_UNINSUR", Label: "No Health Insurance"},
	{Key: "E_LIMENG", Label: "English Language Proficiency"},
	{Key: "E_MINRTY", Label: "Racial & Ethnic Minority"},
	{Key: "E_MOBILE", Label: "Mobile Homes"},
	{Key: "E_NOVEH", Label: "No Vehicles"},
	{Key: "EPL_POV150", Label: "National Percentile Persons Below 150% Poverty"},
	{Key: "RPL_THEME1", Label: "Percentile Ranking for Socioeconomic Status Theme"},
	{Key: "RPL_THEMES", Label: "Overall Percentile Ranking"},
	{Key: geodata.PropPopDensity, Label: "Population Density", Derived: true},
}

// Lookup returns the catalog entry for a variable key.
func Lookup(key string) (Variable, bool) {
	for _, v := range Catalog {
		if v.Key == key {
			return v, true
		}
	}
	return Variable{}, false
}
