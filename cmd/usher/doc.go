// Command usher is the operator CLI for the usher daemon: status, catalog
// inspection, one-shot resolution, live readiness watching, and manual
// promotion.
package main
