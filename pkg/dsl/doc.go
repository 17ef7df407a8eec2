/*
Package dsl provides a fluent Go builder for doubt-resolution flows.

It is an alternative to YAML or JSON flow documents for tests, demos and
flows generated at runtime.

Example usage:

	b := dsl.New("algebra").Name("Algebra Help").Subject("Mathematics")

	b.Add("welcome").
		Question("What would you like to learn about?").
		Option("Linear Equations", "linear").
		Option("Ask AI", "tutor")

	b.Add("linear").
		Answer("Linear equations have the form ax + b = c.").
		Option("Back to Menu", "welcome")

	b.Add("tutor").
		AI("Ask me anything about Algebra!").
		Prompt("Explain step by step.")

	flow, err := b.Build()
*/
package dsl
