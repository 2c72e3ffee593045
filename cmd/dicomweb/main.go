package main

// dicomweb processes batches of medical image files: metadata extraction,
// PHI anonymization, and report generation, either as a one-shot CLI run or
// behind an HTTP API with live WebSocket status updates.
func main() {
	Execute()
}
