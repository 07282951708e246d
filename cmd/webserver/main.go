// Package main is the webserver executable. It defers to the cobra CLI in cmd.
package main

import "github.com/minhd-vu/webserver/cmd"

func main() {
	cmd.Execute()
}
