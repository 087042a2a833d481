package typeinfo

import (
	"fmt"
	"strings"
	"sync"

	"classbuilder/internal/classfile"
)

type bootClass struct {
	name       string
	super      string
	flags      classfile.AccessFlags
	interfaces []string
	members    []string
}

const (
	pub       = classfile.AccPublic | classfile.AccSuper
	pubFinal  = pub | classfile.AccFinal
	pubAbs    = pub | classfile.AccAbstract
	pubIface  = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	objName   = "java/lang/Object"
	serialIfc = "java/io/Serializable"
)

func boxed(name, prim, letter, extraSuper string) bootClass {
	desc := "L" + name + ";"
	members := []string{
		"ps valueOf (" + letter + ")" + desc,
		"p " + prim + "Value ()" + letter,
		"p toString ()Ljava/lang/String;",
		"p equals (Ljava/lang/Object;)Z",
		"p hashCode ()I",
		"ps toString (" + letter + ")Ljava/lang/String;",
	}
	if extraSuper == "java/lang/Number" {
		members = append(members, "psf MAX_VALUE "+letter, "psf MIN_VALUE "+letter)
		for _, nv := range []string{"int:I", "long:J", "float:F", "double:D"} {
			n, l, _ := strings.Cut(nv, ":")
			if n != prim {
				members = append(members, "p "+n+"Value ()"+l)
			}
		}
	}
	return bootClass{name, extraSuper, pubFinal, []string{serialIfc, "java/lang/Comparable"}, members}
}

var bootClasses = []bootClass{
	{objName, "", pub, nil, []string{
		"p <init> ()V",
		"p toString ()Ljava/lang/String;",
		"p equals (Ljava/lang/Object;)Z",
		"p hashCode ()I",
		"pf getClass ()Ljava/lang/Class;",
	}},
	{"java/lang/Class", objName, pubFinal, []string{serialIfc}, []string{
		"p getName ()Ljava/lang/String;",
	}},
	{serialIfc, objName, pubIface, nil, nil},
	{"java/lang/Cloneable", objName, pubIface, nil, nil},
	{"java/lang/Comparable", objName, pubIface, nil, []string{
		"p compareTo (Ljava/lang/Object;)I",
	}},
	{"java/lang/CharSequence", objName, pubIface, nil, []string{
		"p length ()I",
		"p charAt (I)C",
		"p toString ()Ljava/lang/String;",
	}},
	{"java/lang/Runnable", objName, pubIface, nil, []string{
		"p run ()V",
	}},
	{"java/lang/String", objName, pubFinal, []string{serialIfc, "java/lang/Comparable", "java/lang/CharSequence"}, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
		"p length ()I",
		"p charAt (I)C",
		"p isEmpty ()Z",
		"p concat (Ljava/lang/String;)Ljava/lang/String;",
		"p equals (Ljava/lang/Object;)Z",
		"p hashCode ()I",
		"p compareTo (Ljava/lang/Object;)I",
		"p toString ()Ljava/lang/String;",
		"p substring (II)Ljava/lang/String;",
		"ps valueOf (Ljava/lang/Object;)Ljava/lang/String;",
		"ps valueOf (Z)Ljava/lang/String;",
		"ps valueOf (C)Ljava/lang/String;",
		"ps valueOf (I)Ljava/lang/String;",
		"ps valueOf (J)Ljava/lang/String;",
		"ps valueOf (F)Ljava/lang/String;",
		"ps valueOf (D)Ljava/lang/String;",
	}},
	{"java/lang/StringBuilder", objName, pubFinal, []string{serialIfc, "java/lang/CharSequence"}, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
		"p append (Ljava/lang/String;)Ljava/lang/StringBuilder;",
		"p append (Ljava/lang/Object;)Ljava/lang/StringBuilder;",
		"p append (Z)Ljava/lang/StringBuilder;",
		"p append (C)Ljava/lang/StringBuilder;",
		"p append (I)Ljava/lang/StringBuilder;",
		"p append (J)Ljava/lang/StringBuilder;",
		"p append (F)Ljava/lang/StringBuilder;",
		"p append (D)Ljava/lang/StringBuilder;",
		"p length ()I",
		"p charAt (I)C",
		"p toString ()Ljava/lang/String;",
	}},
	{"java/lang/Number", objName, pubAbs, []string{serialIfc}, []string{
		"p <init> ()V",
		"pa intValue ()I",
		"pa longValue ()J",
		"pa floatValue ()F",
		"pa doubleValue ()D",
		"p byteValue ()B",
		"p shortValue ()S",
	}},
	boxed("java/lang/Integer", "int", "I", "java/lang/Number"),
	boxed("java/lang/Long", "long", "J", "java/lang/Number"),
	boxed("java/lang/Short", "short", "S", "java/lang/Number"),
	boxed("java/lang/Byte", "byte", "B", "java/lang/Number"),
	boxed("java/lang/Float", "float", "F", "java/lang/Number"),
	boxed("java/lang/Double", "double", "D", "java/lang/Number"),
	boxed("java/lang/Boolean", "boolean", "Z", objName),
	boxed("java/lang/Character", "char", "C", objName),
	{"java/lang/Throwable", objName, pub, []string{serialIfc}, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
		"p <init> (Ljava/lang/String;Ljava/lang/Throwable;)V",
		"p getMessage ()Ljava/lang/String;",
		"p getCause ()Ljava/lang/Throwable;",
		"p printStackTrace ()V",
	}},
	{"java/lang/Exception", "java/lang/Throwable", pub, nil, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
	}},
	{"java/lang/Error", "java/lang/Throwable", pub, nil, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
	}},
	{"java/lang/RuntimeException", "java/lang/Exception", pub, nil, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
	}},
	{"java/lang/IllegalArgumentException", "java/lang/RuntimeException", pub, nil, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
	}},
	{"java/lang/IllegalStateException", "java/lang/RuntimeException", pub, nil, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
	}},
	{"java/lang/ArithmeticException", "java/lang/RuntimeException", pub, nil, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
	}},
	{"java/lang/NullPointerException", "java/lang/RuntimeException", pub, nil, []string{
		"p <init> ()V",
		"p <init> (Ljava/lang/String;)V",
	}},
	{"java/lang/System", objName, pubFinal, nil, []string{
		"psf out Ljava/io/PrintStream;",
		"psf err Ljava/io/PrintStream;",
		"ps currentTimeMillis ()J",
		"ps identityHashCode (Ljava/lang/Object;)I",
	}},
	{"java/lang/Math", objName, pubFinal, nil, []string{
		"ps abs (I)I",
		"ps abs (J)J",
		"ps abs (D)D",
		"ps max (II)I",
		"ps max (JJ)J",
		"ps min (II)I",
		"ps min (JJ)J",
	}},
	{"java/io/PrintStream", objName, pub, nil, []string{
		"p println ()V",
		"p println (Z)V",
		"p println (C)V",
		"p println (I)V",
		"p println (J)V",
		"p println (F)V",
		"p println (D)V",
		"p println (Ljava/lang/String;)V",
		"p println (Ljava/lang/Object;)V",
		"p print (Ljava/lang/String;)V",
		"p print (I)V",
	}},
	{"java/lang/Iterable", objName, pubIface, nil, []string{
		"p iterator ()Ljava/util/Iterator;",
	}},
	{"java/util/Iterator", objName, pubIface, nil, []string{
		"p hasNext ()Z",
		"p next ()Ljava/lang/Object;",
	}},
	{"java/util/Collection", objName, pubIface, []string{"java/lang/Iterable"}, []string{
		"p size ()I",
		"p isEmpty ()Z",
		"p add (Ljava/lang/Object;)Z",
		"p contains (Ljava/lang/Object;)Z",
	}},
	{"java/util/List", objName, pubIface, []string{"java/util/Collection"}, []string{
		"p get (I)Ljava/lang/Object;",
	}},
	{"java/util/AbstractList", objName, pubAbs, []string{"java/util/List"}, []string{
		"r <init> ()V",
	}},
	{"java/util/ArrayList", "java/util/AbstractList", pub, []string{"java/util/List", serialIfc, "java/lang/Cloneable"}, []string{
		"p <init> ()V",
		"p <init> (I)V",
		"p add (Ljava/lang/Object;)Z",
		"p get (I)Ljava/lang/Object;",
		"p size ()I",
		"p isEmpty ()Z",
		"p contains (Ljava/lang/Object;)Z",
		"p iterator ()Ljava/util/Iterator;",
	}},
}

// Bootstrap returns a registry holding the core JDK classes the generator
// itself relies on: Object, String, StringBuilder, the wrappers, the
// Throwable family, System/PrintStream and the iteration interfaces.
func Bootstrap() *Registry {
	r := NewRegistry()
	for _, bc := range bootClasses {
		c, err := Define(bc.name, bc.super, bc.flags, bc.interfaces, bc.members...)
		if err != nil {
			panic(fmt.Sprintf("typeinfo: bootstrap %s: %v", bc.name, err))
		}
		r.Add(c)
	}
	return r
}

var shared = sync.OnceValue(Bootstrap)

// Default returns a process-wide bootstrap registry. Callers must not Add
// to it; wrap it in a Session to layer more classes.
func Default() *Registry { return shared() }
