/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "converse/cmd"

func main() {
	cmd.Execute()
}
