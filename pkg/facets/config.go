package facets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a facet schema from a YAML file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facet schema: %w", err)
	}

	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse facet schema: %w", err)
	}

	if len(schema.Facets) == 0 {
		return nil, fmt.Errorf("facet schema %s declares no facets", path)
	}
	for _, f := range schema.Facets {
		if f.Name == "" {
			return nil, fmt.Errorf("facet schema %s declares a facet with no name", path)
		}
		if len(f.Domain) == 0 {
			return nil, fmt.Errorf("facet %q declares an empty domain", f.Name)
		}
	}

	return &schema, nil
}

// Default returns the built-in facet schema for the curated agricultural
// development knowledge base.
func Default() *Schema {
	return &Schema{
		Facets: []Facet{
			{
				Name:        "type",
				Label:       "Type(s)",
				Description: "Resource type(s)",
				Domain: []string{
					"use case",
					"dataset",
					"learning",
				},
			},
			{
				Name:        "year",
				Label:       "Year(s)",
				Description: "The year(s) that the learning/use case/dataset covers",
				Domain: []string{
					"2023", "2024", "2025", "2026", "2027", "2028", "2029", "2030",
				},
			},
			{
				Name:        "country",
				Label:       "Country(s)",
				Description: "The country(s) involved",
				Domain: []string{
					"Ukraine",
					"Kosovo",
					"Mauritius",
					"Tunisia",
					"Western and Central Africa",
					"Chad",
					"Philippines",
					"Lebanon",
					"Afghanistan",
					"Ghana",
					"Central African Republic",
					"Turkiye",
					"Kazakhstan",
					"Morocco",
					"China",
					"Moldova",
					"Eastern and Southern Africa",
				},
			},
			{
				Name:        "region",
				Label:       "Region(s)",
				Description: "The region(s) involved",
				Domain: []string{
					"Europe and Central Asia",
					"Eastern and Southern Africa",
					"Middle East and North Africa",
					"Western and Central Africa",
					"East Asia and Pacific",
					"South Asia",
				},
			},
			{
				Name:        "organization",
				Label:       "Organization(s)",
				Description: "The organization(s) involved",
				Domain: []string{
					"Ministry of Agrarian Policy and Food, Business Development Fund",
					"Ministry of Agriculture, Forestry and Rural Development",
					"Airports of Mauritius Co. Ltd (AML), Airport of Rodrigues Limited (ARL)",
					"Office des Céréales",
					"Ministry of Agrarian Policy and Food, Partial Credit Guarantee Fund",
					"Ministère de la Santé Publique",
					"Department of Agriculture",
					"Council for Development and Reconstruction",
					"Aga Khan Foundation USA, The United Nations Office for Project Services",
					"The Tree Crops Development Authority (TCDA), The Ghana Cocoa Board (COCOBOD)",
					"Ministry of Agriculture and Rural Development",
					"Directorate General of Forestry (OGM)",
					"Forestry and Wildlife Committee of the Ministry of Ecology and Natural Resources",
					"Hunan Provincial Department of Agriculture and Rural Affairs",
					"Ministry of Agriculture and Food Industry",
					"Department of Agriculture - Bureau of Fisheries and Aquatic Resources",
				},
			},
			{
				Name:        "topic",
				Label:       "Topic(s)",
				Description: "The agricultural topic(s) involved",
				Domain: []string{
					"Agricultural Extension, Research, and Other Support Activities",
					"Public Administration - Agriculture, Fishing & Forestry",
					"Irrigation and Drainage",
					"Fisheries",
					"Other Water Supply, Sanitation and Waste Management",
					"Tourism",
					"Public Administration - Transportation",
					"Aviation",
					"Other Agriculture, Fishing and Forestry",
					"Agricultural markets, commercialization and agri-business",
					"Crops",
					"Livestock",
					"Public Administration - Industry, Trade and Services",
					"Public Administration - Water, Sanitation and Waste Management",
					"Water Supply",
					"Sanitation",
					"ICT Services",
					"Forestry",
					"Other Public Administration",
					"Social Protection",
					"Health",
				},
			},
		},
	}
}
