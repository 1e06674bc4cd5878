// Package backend defines the interface every execution backend implements,
// along with the errors backends report and a registry that resolves a
// backend by name.
package backend
