/*
Package dsl provides a Go DSL for programmatically constructing stepflow catalogs.

It allows developers to declare steps, their dependencies and conditions, and flow profiles
using a fluent builder instead of YAML or Markdown documents. This is particularly useful for
tests, generated catalogs, and leveraging IDE autocompletion/type-checking.

Example usage:

	b := dsl.New()

	b.Add("category").
		Title("Category").
		Component("CategoryPicker").
		Owns(domain.KeyCategory)

	b.Add("intent").
		After("category").
		When(domain.CategoryIs(domain.OpIn, []any{"property", "vehicle"}))

	b.Add("employment").
		After("category").
		When(domain.CategoryIs(domain.OpEquals, "job")).
		Then("review")

	b.Profile("quick", "Quick listing").
		Override("review", 0)

	// The resulting loader can be passed to stepflow.New via stepflow.WithLoader.
	loader, err := b.Build()
*/
package dsl
