// Command qconn serves a demo root value over qconn connections and calls
// operations on remote roots.
package main

func main() {
	Execute()
}
