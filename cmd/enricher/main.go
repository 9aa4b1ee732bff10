// Package main wires together the enricher binary.
package main

import "github.com/JakeFAU/rating-enricher/internal/cli"

func main() {
	cli.Execute()
}
