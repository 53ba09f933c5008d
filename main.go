/*
Copyright © 2026 Nepse Labs Engineering <dev@nepselabs.com>
*/
package main

import "github.com/nepselabs/feed-service/cmd"

func main() {
	cmd.Execute()
}
