// Package main provides dispatchplan, a CLI that shows how tensor operations are
// scheduled into device dispatches.
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	root := NewCLI()
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
