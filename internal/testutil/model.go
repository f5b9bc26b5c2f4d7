// Package testutil provides deterministic fixtures shared across the
// test suites: a canonical entity hierarchy, fixed token generators,
// and a resettable logical clock.
package testutil

import "github.com/stratahq/strata/internal/schema"

// ShapeSpec is the canonical four-type hierarchy most suites translate
// against:
//
//	Base (Id int, Name string)
//	└── Mid (Score int)
//	    ├── LeafA (Weight float)
//	    └── LeafB (Tag string?)
//
// Column layout: 0 discriminator, 1 Id, 2 Name, 3 Score, 4 Weight,
// 5 Tag.
func ShapeSpec() *schema.ModelSpec {
	return &schema.ModelSpec{
		Name: "shapes",
		Entities: []schema.EntitySpec{
			{Name: "Base", Properties: []schema.PropertySpec{
				{Name: "Id", Type: "int"},
				{Name: "Name", Type: "string"},
			}},
			{Name: "Mid", Base: "Base", Properties: []schema.PropertySpec{
				{Name: "Score", Type: "int"},
			}},
			{Name: "LeafA", Base: "Mid", Properties: []schema.PropertySpec{
				{Name: "Weight", Type: "float"},
			}},
			{Name: "LeafB", Base: "Mid", Properties: []schema.PropertySpec{
				{Name: "Tag", Type: "string?"},
			}},
		},
	}
}

// ShapeModel builds the canonical hierarchy model. The spec is static,
// so a build failure is a defect in the fixture itself.
func ShapeModel() *schema.Model {
	m, err := schema.NewModel(ShapeSpec())
	if err != nil {
		panic("testutil: shape model must build: " + err.Error())
	}
	return m
}

// OrdersSpec is a two-hierarchy commerce model used by the planner,
// engine, and harness suites:
//
//	Customer (Id int, Name string, Region string)
//	Order (Id int, CustomerId int, Total int, Note string?)
//	└── RushOrder (Surcharge int)
func OrdersSpec() *schema.ModelSpec {
	return &schema.ModelSpec{
		Name: "orders",
		Entities: []schema.EntitySpec{
			{Name: "Customer", Properties: []schema.PropertySpec{
				{Name: "Id", Type: "int"},
				{Name: "Name", Type: "string"},
				{Name: "Region", Type: "string"},
			}},
			{Name: "Order", Properties: []schema.PropertySpec{
				{Name: "Id", Type: "int"},
				{Name: "CustomerId", Type: "int"},
				{Name: "Total", Type: "int"},
				{Name: "Note", Type: "string?"},
			}},
			{Name: "RushOrder", Base: "Order", Properties: []schema.PropertySpec{
				{Name: "Surcharge", Type: "int"},
			}},
		},
	}
}

// OrdersModel builds the commerce model.
func OrdersModel() *schema.Model {
	m, err := schema.NewModel(OrdersSpec())
	if err != nil {
		panic("testutil: orders model must build: " + err.Error())
	}
	return m
}
