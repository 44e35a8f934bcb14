// Idiomatic entrypoint for Cobra CLI that delegates handling to the root command in cmd/infercli/root.go.

package main

func main() {
	Execute()
}
