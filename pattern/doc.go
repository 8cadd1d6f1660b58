// Package pattern implements Lua 5.1 patterns and the gsub substitution
// driver built on them.
//
// Lua patterns are not regular expressions: there is no alternation, captures
// cannot be quantified, and the engine is a simple backtracking matcher with a
// fixed recursion limit. This package reproduces the reference semantics
// closely enough that template modules written against the C implementation
// behave the same way.
//
// # Text
//
// Matching operates on [Text], an indexable sequence of elements. [Bytes]
// treats a string as bytes, which is what the scripting language's string
// library does. [Runes] treats it as Unicode code points, which is what the
// ustring library does. One matcher serves both; offsets in [Match] are
// element indices, 0-based.
//
//	p, err := pattern.Compile(pattern.Bytes("(%a+)=(%d+)"))
//	if err != nil {
//	    return err
//	}
//	m, err := p.Find(pattern.Bytes("x=42"), 0)
//
// # Substitution
//
// [GSub] is a restartable driver: [GSub.Next] finds the next match, the
// caller decides what to put in its place with [GSub.Replace], and
// [GSub.Finish] flushes the tail. Callers that need to run script code for
// each match (callbacks, metatable lookups) drive the loop themselves; plain
// string templates go through [ExpandTemplate].
package pattern
