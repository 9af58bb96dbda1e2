// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package conf provides the configuration map used throughout lockfs.
//
// A ConfMap is a two-level map of section name to option name to a slice of
// option values. It may be built up programmatically, from strings of the
// form "<section>.<option> = <value>[, <value>]*", or from .conf files in
// the usual INI dialect ([Section] headers, '#'/';' comments).
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type ConfMapOption []string
type ConfMapSection map[string]ConfMapOption
type ConfMap map[string]ConfMapSection

// MakeConfMap returns a newly created empty ConfMap
func MakeConfMap() (confMap ConfMap) {
	confMap = make(ConfMap)
	return
}

// MakeConfMapFromStrings returns a newly created ConfMap loaded with the
// contents specified in confStrings
func MakeConfMapFromStrings(confStrings []string) (confMap ConfMap, err error) {
	confMap = MakeConfMap()
	for _, confString := range confStrings {
		err = confMap.UpdateFromString(confString)
		if nil != err {
			err = fmt.Errorf("Error building confMap from conf strings: %v", err)
			return
		}
	}

	err = nil
	return
}

// MakeConfMapFromFile returns a newly created ConfMap loaded with the
// contents of the confFilePath-specified file
func MakeConfMapFromFile(confFilePath string) (confMap ConfMap, err error) {
	confMap = MakeConfMap()
	err = confMap.UpdateFromFile(confFilePath)
	return
}

// UpdateFromString updates a ConfMap from a single
// "<section>.<option> = <values>" string
func (confMap ConfMap) UpdateFromString(confString string) (err error) {
	assignmentSplit := strings.SplitN(confString, "=", 2)
	if 2 != len(assignmentSplit) {
		assignmentSplit = strings.SplitN(confString, ":", 2)
		if 2 != len(assignmentSplit) {
			err = fmt.Errorf("confString `%v` missing '=' or ':' assignment", confString)
			return
		}
	}

	sectionDotOption := strings.TrimSpace(assignmentSplit[0])
	dotSplit := strings.SplitN(sectionDotOption, ".", 2)
	if (2 != len(dotSplit)) || ("" == dotSplit[0]) || ("" == dotSplit[1]) {
		err = fmt.Errorf("confString `%v` missing '<section>.<option>' on left of assignment", confString)
		return
	}

	confMap.updateEntry(dotSplit[0], dotSplit[1], assignmentSplit[1])

	err = nil
	return
}

// UpdateFromFile updates a ConfMap from the contents of the
// confFilePath-specified .conf file
func (confMap ConfMap) UpdateFromFile(confFilePath string) (err error) {
	var (
		confFileBytes   []byte
		currentSection  string
		lineNumber      int
		trimmedConfLine string
	)

	confFileBytes, err = os.ReadFile(confFilePath)
	if nil != err {
		err = fmt.Errorf("error reading conf file `%v`: %v", confFilePath, err)
		return
	}

	for _, confLine := range strings.Split(string(confFileBytes), "\n") {
		lineNumber++

		trimmedConfLine = strings.TrimSpace(stripComment(confLine))
		if "" == trimmedConfLine {
			continue
		}

		if strings.HasPrefix(trimmedConfLine, "[") {
			if !strings.HasSuffix(trimmedConfLine, "]") {
				err = fmt.Errorf("%v:%v malformed section header `%v`", confFilePath, lineNumber, confLine)
				return
			}
			currentSection = strings.TrimSpace(trimmedConfLine[1 : len(trimmedConfLine)-1])
			if "" == currentSection {
				err = fmt.Errorf("%v:%v empty section name", confFilePath, lineNumber)
				return
			}
			continue
		}

		assignmentSplit := strings.SplitN(trimmedConfLine, "=", 2)
		if 2 != len(assignmentSplit) {
			assignmentSplit = strings.SplitN(trimmedConfLine, ":", 2)
			if 2 != len(assignmentSplit) {
				err = fmt.Errorf("%v:%v missing '=' or ':' assignment", confFilePath, lineNumber)
				return
			}
		}
		if "" == currentSection {
			err = fmt.Errorf("%v:%v option line precedes first section header", confFilePath, lineNumber)
			return
		}

		confMap.updateEntry(currentSection, strings.TrimSpace(assignmentSplit[0]), assignmentSplit[1])
	}

	err = nil
	return
}

func stripComment(confLine string) (strippedConfLine string) {
	strippedConfLine = confLine
	for _, commentLead := range []string{"#", ";"} {
		commentIndex := strings.Index(strippedConfLine, commentLead)
		if -1 != commentIndex {
			strippedConfLine = strippedConfLine[:commentIndex]
		}
	}
	return
}

func (confMap ConfMap) updateEntry(sectionName string, optionName string, valuesString string) {
	var (
		optionValues ConfMapOption
	)

	for _, commaSplit := range strings.Split(valuesString, ",") {
		for _, spaceSplit := range strings.Fields(commaSplit) {
			optionValues = append(optionValues, spaceSplit)
		}
	}

	section, ok := confMap[sectionName]
	if !ok {
		section = make(ConfMapSection)
		confMap[sectionName] = section
	}

	section[optionName] = optionValues
}

// FetchOptionValueStringSlice returns [sectionName]optionName's string values
func (confMap ConfMap) FetchOptionValueStringSlice(sectionName string, optionName string) (optionValueSlice []string, err error) {
	section, ok := confMap[sectionName]
	if !ok {
		err = fmt.Errorf("cannot find [%v]", sectionName)
		return
	}

	optionValueSlice, ok = section[optionName]
	if !ok {
		err = fmt.Errorf("cannot find [%v]%v", sectionName, optionName)
		return
	}

	err = nil
	return
}

// FetchOptionValueString returns [sectionName]optionName's single string value
func (confMap ConfMap) FetchOptionValueString(sectionName string, optionName string) (optionValue string, err error) {
	optionValue = ""

	optionValueSlice, err := confMap.FetchOptionValueStringSlice(sectionName, optionName)
	if nil != err {
		return
	}

	if 1 != len(optionValueSlice) {
		err = fmt.Errorf("[%v]%v must be single-valued", sectionName, optionName)
		return
	}

	optionValue = optionValueSlice[0]

	err = nil
	return
}

// FetchOptionValueBool returns [sectionName]optionName's single string value converted to a bool
func (confMap ConfMap) FetchOptionValueBool(sectionName string, optionName string) (optionValue bool, err error) {
	optionValueString, err := confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	switch strings.ToLower(optionValueString) {
	case "yes", "on", "true":
		optionValue = true
	case "no", "off", "false":
		optionValue = false
	default:
		err = fmt.Errorf("[%v]%v `%v` not interpretable as a bool", sectionName, optionName, optionValueString)
	}

	return
}

// FetchOptionValueUint64 returns [sectionName]optionName's single string value converted to a uint64
func (confMap ConfMap) FetchOptionValueUint64(sectionName string, optionName string) (optionValue uint64, err error) {
	optionValue = 0

	optionValueString, err := confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValue, strconvErr := strconv.ParseUint(optionValueString, 10, 64)
	if nil != strconvErr {
		err = fmt.Errorf("[%v]%v strconv.ParseUint() error: %v", sectionName, optionName, strconvErr)
		return
	}

	err = nil
	return
}

// FetchOptionValueDuration returns [sectionName]optionName's single string value converted to a time.Duration
func (confMap ConfMap) FetchOptionValueDuration(sectionName string, optionName string) (optionValue time.Duration, err error) {
	optionValue = time.Duration(0)

	optionValueString, err := confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValue, timeParseDurationErr := time.ParseDuration(optionValueString)
	if nil != timeParseDurationErr {
		err = fmt.Errorf("[%v]%v time.ParseDuration() error: %v", sectionName, optionName, timeParseDurationErr)
		return
	}

	err = nil
	return
}
