package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Доступ: члены, видимость, неинициализированные локальные
	AccInfo            Code = 1000
	AccNoSuchClass     Code = 1001
	AccNoSuchField     Code = 1002
	AccNoSuchMethod    Code = 1003
	AccStaticMismatch  Code = 1004
	AccInvisible       Code = 1005
	AccUnassignedLocal Code = 1006
	AccNoThis          Code = 1007
	AccFinalAssign     Code = 1008

	// Синтаксис и состояние фрагментов
	SynInfo                Code = 2000
	SynScopeClosed         Code = 2001
	SynElseOutsideIf       Code = 2002
	SynCatchOutsideTry     Code = 2003
	SynBreakOutsideLoop    Code = 2004
	SynContinueOutsideLoop Code = 2005
	SynNodeReused          Code = 2006
	SynDanglingExpr        Code = 2007
	SynTooManyLocals       Code = 2008
	SynUnbalancedEnd       Code = 2009
	SynMisplacedSuperCall  Code = 2010
	SynNoBody              Code = 2011
	SynForeignNode         Code = 2012
	SynOverlappingCatch    Code = 2013
	SynCodeTooLarge        Code = 2014
	SynPoolOverflow        Code = 2015
	SynBranchTooFar        Code = 2016
	SynDuplicateMember     Code = 2017
	SynPatchUnderflow      Code = 2018
	SynMethodClosed        Code = 2019

	// Типы
	TypInfo                Code = 3000
	TypOperandMismatch     Code = 3001
	TypInvalidCast         Code = 3002
	TypArgumentMismatch    Code = 3003
	TypMissingReturn       Code = 3004
	TypExtraneousReturn    Code = 3005
	TypNotAssignable       Code = 3006
	TypNotThrowable        Code = 3007
	TypNotArray            Code = 3008
	TypNotIterable         Code = 3009
	TypUnsupportedConstant Code = 3010
	TypNotBoolean          Code = 3011
	TypAmbiguousCall       Code = 3012
	TypVoidValue           Code = 3013

	// Сборка класса
	AsmInfo                   Code = 4000
	AsmMethodOpen             Code = 4001
	AsmAbstractNotImplemented Code = 4002
	AsmUnusable               Code = 4003
	AsmFinalized              Code = 4004
	AsmBadDeclaration         Code = 4005
	AsmIO                     Code = 4006

	// Рецепты и конфигурация
	RecInfo        Code = 5000
	RecInvalid     Code = 5001
	RecDecode      Code = 5002
	RecUnknownType Code = 5003
)

// Category groups codes by the error taxonomy.
type Category uint8

const (
	CatUnknown Category = iota
	CatAccess
	CatSyntax
	CatType
	CatAssembly
	CatRecipe
)

func (c Category) String() string {
	switch c {
	case CatAccess:
		return "access"
	case CatSyntax:
		return "syntax"
	case CatType:
		return "type"
	case CatAssembly:
		return "assembly"
	case CatRecipe:
		return "recipe"
	}
	return "unknown"
}

// Category returns the taxonomy bucket for the code.
func (c Code) Category() Category {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return CatAccess
	case ic >= 2000 && ic < 3000:
		return CatSyntax
	case ic >= 3000 && ic < 4000:
		return CatType
	case ic >= 4000 && ic < 5000:
		return CatAssembly
	case ic >= 5000 && ic < 6000:
		return CatRecipe
	}
	return CatUnknown
}

func (c Code) ID() string {
	switch c.Category() {
	case CatAccess:
		return fmt.Sprintf("ACC%04d", int(c))
	case CatSyntax:
		return fmt.Sprintf("SYN%04d", int(c))
	case CatType:
		return fmt.Sprintf("TYP%04d", int(c))
	case CatAssembly:
		return fmt.Sprintf("ASM%04d", int(c))
	case CatRecipe:
		return fmt.Sprintf("REC%04d", int(c))
	}
	return "E0000"
}

var codeDescription = map[Code]string{
	UnknownCode: "Unknown error",

	AccInfo:            "Access information",
	AccNoSuchClass:     "Unknown class",
	AccNoSuchField:     "Unknown field",
	AccNoSuchMethod:    "Unknown method",
	AccStaticMismatch:  "Static/instance mismatch",
	AccInvisible:       "Member not accessible",
	AccUnassignedLocal: "Local read before assignment",
	AccNoThis:          "No receiver in static context",
	AccFinalAssign:     "Assignment to final field",

	SynInfo:                "Structure information",
	SynScopeClosed:         "Statement after scope closed",
	SynElseOutsideIf:       "Else outside if",
	SynCatchOutsideTry:     "Catch outside try",
	SynBreakOutsideLoop:    "Break outside loop",
	SynContinueOutsideLoop: "Continue outside loop",
	SynNodeReused:          "Expression node reused",
	SynDanglingExpr:        "Unconsumed expression",
	SynTooManyLocals:       "Too many local slots",
	SynUnbalancedEnd:       "End without open scope",
	SynMisplacedSuperCall:  "Misplaced constructor call",
	SynNoBody:              "Method has no body",
	SynForeignNode:         "Expression from another method",
	SynOverlappingCatch:    "Overlapping catch",
	SynCodeTooLarge:        "Code too large",
	SynPoolOverflow:        "Constant pool overflow",
	SynBranchTooFar:        "Branch offset out of range",
	SynDuplicateMember:     "Duplicate member",
	SynPatchUnderflow:      "No open patch site",
	SynMethodClosed:        "Method already finished",

	TypInfo:                "Type information",
	TypOperandMismatch:     "Operand type mismatch",
	TypInvalidCast:         "Invalid cast",
	TypArgumentMismatch:    "Argument mismatch",
	TypMissingReturn:       "Missing return value",
	TypExtraneousReturn:    "Extraneous return value",
	TypNotAssignable:       "Type not assignable",
	TypNotThrowable:        "Not a throwable",
	TypNotArray:            "Not an array",
	TypNotIterable:         "Not iterable",
	TypUnsupportedConstant: "Unsupported constant",
	TypNotBoolean:          "Condition is not boolean",
	TypAmbiguousCall:       "Ambiguous invocation",
	TypVoidValue:           "Void used as value",

	AsmInfo:                   "Assembly information",
	AsmMethodOpen:             "Method left open",
	AsmAbstractNotImplemented: "Abstract member not implemented",
	AsmUnusable:               "Assembler unusable",
	AsmFinalized:              "Class already finalized",
	AsmBadDeclaration:         "Bad declaration",
	AsmIO:                     "Write failed",

	RecInfo:        "Recipe information",
	RecInvalid:     "Invalid recipe",
	RecDecode:      "Recipe decode failed",
	RecUnknownType: "Unknown type in recipe",
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
