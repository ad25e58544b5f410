/*
Package compiler turns a validated C subset program into NASM x86-64 assembly.

Process of compilation

JSON hand-off (ast) ->
	decode ->
Abstract Syntax Tree with bound symbols (ast) ->
	front ->
Intermediate Representation (ir) ->
	back: allocate ->
Registers and Stack Frame (back.Alloc) ->
	back: emit ->
Assembly Text ->
	nasm -felf64, ld ->
Binary Executable

*/
package compiler
