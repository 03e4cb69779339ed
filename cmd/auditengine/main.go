// Command auditengine runs the automated security audit pipeline over a
// Move-family smart contract source tree and writes a ranked Markdown
// report. See `auditengine audit --help`.
package main

func main() {
	Execute()
}
