// Package ast provides the canonical s-expression node structure shared by
// every stage of the conversion pipeline: parser back-ends produce it,
// filters rewrite it, and the serializer renders it.
package ast

// Type is the tag of a node, drawn from the canonical vocabulary below.
type Type string

// Symbol is an identifier-like atom child (method names, variable names).
// It is distinct from string so that a symbol child and a string-literal
// child never compare equal.
type Symbol string

// Canonical node type constants. The vocabulary is open (filters may invent
// tags for private hand-off between passes), but parser back-ends emit only
// these.
const (
	TypeBegin   Type = "begin"
	TypeKwBegin Type = "kwbegin"

	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeStr    Type = "str"
	TypeDStr   Type = "dstr"
	TypeSym    Type = "sym"
	TypeRegexp Type = "regexp"
	TypeTrue   Type = "true"
	TypeFalse  Type = "false"
	TypeNil    Type = "nil"
	TypeSelf   Type = "self"

	TypeArray  Type = "array"
	TypeHash   Type = "hash"
	TypePair   Type = "pair"
	TypeIRange Type = "irange"
	TypeERange Type = "erange"

	TypeLVar  Type = "lvar"
	TypeIVar  Type = "ivar"
	TypeGVar  Type = "gvar"
	TypeConst Type = "const"

	TypeLVAsgn Type = "lvasgn"
	TypeIVAsgn Type = "ivasgn"
	TypeGVAsgn Type = "gvasgn"
	TypeCAsgn  Type = "casgn"
	TypeOpAsgn Type = "op_asgn"
	TypeMAsgn  Type = "masgn"
	TypeMLHS   Type = "mlhs"

	TypeSend  Type = "send"
	TypeCSend Type = "csend"

	// TypeAttr and TypeCall are explicit call-shape markers: attr renders
	// without parentheses regardless of source evidence, call always with.
	TypeAttr Type = "attr"
	TypeCall Type = "call"

	TypeBlock    Type = "block"
	TypeBlockPass Type = "block_pass"
	TypeArgs     Type = "args"
	TypeArg      Type = "arg"
	TypeOptArg   Type = "optarg"
	TypeRestArg  Type = "restarg"
	TypeBlockArg Type = "blockarg"

	TypeDef    Type = "def"
	TypeDefS   Type = "defs"
	TypeClass  Type = "class"
	TypeModule Type = "module"

	TypeIf    Type = "if"
	TypeWhile Type = "while"
	TypeUntil Type = "until"
	TypeCase  Type = "case"
	TypeWhen  Type = "when"

	TypeAnd Type = "and"
	TypeOr  Type = "or"
	TypeNot Type = "not"

	TypeReturn   Type = "return"
	TypeBreak    Type = "break"
	TypeNext     Type = "next"
	TypeRescue   Type = "rescue"
	TypeResBody  Type = "resbody"
	TypeEnsure   Type = "ensure"
	TypeSplat    Type = "splat"
)

// Loc records the source range a node was parsed from. Synthetic nodes
// carry a nil Loc. Lines and columns are 1-based; offsets are byte offsets.
type Loc struct {
	StartLine   int
	StartCol    int
	StartOffset int
	EndLine     int
	EndCol      int
	EndOffset   int

	// HasParens records whether the source spelled explicit parentheses
	// for this node. It drives call-vs-attribute rendering and is not
	// part of structural equality.
	HasParens bool
}

// Comment is a source comment carried alongside the tree, matched to nodes
// by position at serialization time.
type Comment struct {
	Text     string
	Loc      *Loc
	Trailing bool
}
