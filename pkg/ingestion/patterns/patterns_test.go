// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package patterns

import "testing"

func TestScoreComplexity_Deterministic(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		signals []string
		want    string
	}{
		{"maven always low", "MavenArtifact", []string{SignalStateful}, "low"},
		{"jsp stateful high", "JSPComponent", []string{SignalStateful}, "high"},
		{"jsp data-only low", "JSPComponent", []string{SignalDataOnly}, "low"},
		{"jsp no signals medium", "JSPComponent", nil, "medium"},
		{"struts stateful high", "StrutsAction", []string{SignalStateful}, "high"},
		{"struts no signals medium", "StrutsAction", nil, "medium"},
		{"corba stateful high", "CORBAInterface", []string{SignalStateful}, "high"},
		{"corba data-only low", "CORBAInterface", []string{SignalDataOnly}, "low"},
		{"business rule validation medium", "BusinessRule", []string{SignalValidation}, "medium"},
		{"business rule stateful high", "BusinessRule", []string{SignalStateful}, "high"},
		{"business rule no signals low", "BusinessRule", nil, "low"},
		{"unknown kind medium", "Unknown", nil, "medium"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreComplexity(tt.kind, tt.signals)
			if got != tt.want {
				t.Errorf("ScoreComplexity(%q, %v) = %q, want %q", tt.kind, tt.signals, got, tt.want)
			}
			// Re-ingest must never change the score for the same inputs.
			again := ScoreComplexity(tt.kind, tt.signals)
			if again != got {
				t.Errorf("ScoreComplexity(%q, %v) not stable across calls: %q then %q", tt.kind, tt.signals, got, again)
			}
		})
	}
}

func TestAnalyzeJSPMarkup(t *testing.T) {
	markup := `<html:form action="/save"><logic:iterate id="row" name="rows">
<bean:write name="row" property="label"/></logic:iterate></html:form>`

	f, ok := AnalyzeJSPMarkup("views/list.jsp", "chunk-1", markup)
	if !ok {
		t.Fatal("expected a JSPComponent finding for struts taglib markup")
	}
	if f.Kind != "JSPComponent" {
		t.Errorf("Kind = %q, want JSPComponent", f.Kind)
	}
	if f.BusinessPurpose != "data entry and listing view" {
		t.Errorf("BusinessPurpose = %q", f.BusinessPurpose)
	}
	if f.MigrationComplexity != "medium" {
		t.Errorf("MigrationComplexity = %q, want medium", f.MigrationComplexity)
	}
}

func TestAnalyzeJSPMarkup_NoTaglibs(t *testing.T) {
	_, ok := AnalyzeJSPMarkup("views/plain.jsp", "chunk-1", "<div>hello</div>")
	if ok {
		t.Error("expected no finding for markup without struts taglibs")
	}
}

func TestAnalyzeJSPMarkup_SessionSignalRaisesComplexity(t *testing.T) {
	markup := `<logic:iterate id="x" name="items">${session.getAttribute("cart")}</logic:iterate>`
	f, ok := AnalyzeJSPMarkup("views/cart.jsp", "chunk-2", markup)
	if !ok {
		t.Fatal("expected a finding")
	}
	if f.MigrationComplexity != "high" {
		t.Errorf("MigrationComplexity = %q, want high with session access present", f.MigrationComplexity)
	}
}

func TestAnnotateJSPScriptlet_Declaration(t *testing.T) {
	ann := AnnotateJSPScriptlet("declaration", "private int counter = 0;")
	if ann.FrameworkPattern != "jsp_scriptlet:declaration" {
		t.Errorf("FrameworkPattern = %q", ann.FrameworkPattern)
	}
	if ann.MigrationComplexity != "high" {
		t.Errorf("MigrationComplexity = %q, want high for a <%%! %%> declaration", ann.MigrationComplexity)
	}
}

func TestAnalyzeJavaClass_StrutsAction(t *testing.T) {
	text := `public class SaveOrderAction extends DispatchAction {
    private HttpSession session;
    public ActionForward execute() { return null; }
}`
	f, ok := AnalyzeJavaClass("actions/SaveOrderAction.java", "chunk-3", "SaveOrderAction", text)
	if !ok {
		t.Fatal("expected a StrutsAction finding")
	}
	if f.Identity != "SaveOrderAction" {
		t.Errorf("Identity = %q", f.Identity)
	}
	if f.MigrationComplexity != "high" {
		t.Errorf("MigrationComplexity = %q, want high due to session field", f.MigrationComplexity)
	}
}

func TestAnalyzeJavaClass_NotStrutsAction(t *testing.T) {
	_, ok := AnalyzeJavaClass("util/Helper.java", "chunk-4", "Helper", "public class Helper { }")
	if ok {
		t.Error("expected no finding for a plain class")
	}
}

func TestAnalyzeJavaMethod_Validation(t *testing.T) {
	text := `public ActionErrors validateOrder(ActionMapping mapping, HttpServletRequest request) { return null; }`
	f, ok := AnalyzeJavaMethod("actions/OrderAction.java", "chunk-5", "validateOrder", text)
	if !ok {
		t.Fatal("expected a BusinessRule finding")
	}
	if f.BusinessPurpose != "input validation" {
		t.Errorf("BusinessPurpose = %q", f.BusinessPurpose)
	}
}

func TestAnalyzeJavaMethod_CorbaCall(t *testing.T) {
	text := `import org.omg.CORBA.ORB;
public void lookup() { orb.resolve_initial_references("NameService"); }`
	f, ok := AnalyzeJavaMethod("client/Lookup.java", "chunk-6", "lookup", text)
	if !ok {
		t.Fatal("expected a BusinessRule finding for CORBA call")
	}
	if f.BusinessPurpose != "CORBA service invocation" {
		t.Errorf("BusinessPurpose = %q", f.BusinessPurpose)
	}
}

func TestAnalyzeJavaMethod_PlainMethod(t *testing.T) {
	_, ok := AnalyzeJavaMethod("util/Helper.java", "chunk-7", "add", "public int add(int a, int b) { return a + b; }")
	if ok {
		t.Error("expected no finding for a plain method")
	}
}

func TestParseStrutsConfigActions(t *testing.T) {
	xmlText := `<action-mappings>
  <action path="/saveOrder" type="com.acme.actions.SaveOrderAction">
    <forward name="success" path="/order/confirm.jsp"/>
    <forward name="failure" path="/order/edit.jsp"/>
  </action>
  <action path="/cancelOrder" type="com.acme.actions.CancelOrderAction">
    <forward name="success" path="/order/list.jsp"/>
  </action>
</action-mappings>`

	actions := ParseStrutsConfigActions(xmlText)
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].Path != "/saveOrder" || actions[0].Type != "com.acme.actions.SaveOrderAction" {
		t.Errorf("action[0] = %+v", actions[0])
	}
	if len(actions[0].Forwards) != 2 {
		t.Errorf("action[0].Forwards = %v, want 2 entries", actions[0].Forwards)
	}
	if actions[0].Forwards["success"] != "/order/confirm.jsp" {
		t.Errorf("forward success = %q", actions[0].Forwards["success"])
	}

	f := actions[0].ToFinding("struts-config.xml", "chunk-8")
	if f.Kind != "StrutsAction" {
		t.Errorf("Kind = %q", f.Kind)
	}
	if f.Identity != "/saveOrder" {
		t.Errorf("Identity = %q", f.Identity)
	}
}

func TestParseIDLInterface(t *testing.T) {
	idl := `interface AccountService {
    oneway void notifyBalance(in string accountId);
    double getBalance(in string accountId) raises (AccountNotFound);
};`
	name, ops := ParseIDLInterface("AccountService", idl)
	if name != "AccountService" {
		t.Errorf("name = %q", name)
	}
	if len(ops) != 2 {
		t.Fatalf("got %d ops, want 2", len(ops))
	}
	if ops[0].Name != "notifyBalance" || !ops[0].Oneway {
		t.Errorf("ops[0] = %+v", ops[0])
	}
	if ops[1].Name != "getBalance" || ops[1].Oneway {
		t.Errorf("ops[1] = %+v", ops[1])
	}

	f := ToCORBAFinding("idl/AccountService.idl", "chunk-9", name, ops)
	if f.MigrationComplexity != "high" {
		t.Errorf("MigrationComplexity = %q, want high due to oneway op", f.MigrationComplexity)
	}
}

func TestParseIDLInterface_NoOperations(t *testing.T) {
	name, ops := ParseIDLInterface("Empty", "interface Empty { };")
	if len(ops) != 0 {
		t.Fatalf("got %d ops, want 0", len(ops))
	}
	f := ToCORBAFinding("idl/Empty.idl", "chunk-10", name, ops)
	if f.MigrationComplexity != "low" {
		t.Errorf("MigrationComplexity = %q, want low for an operation-less interface", f.MigrationComplexity)
	}
}

func TestParseMavenPOM(t *testing.T) {
	pom := `<project>
  <groupId>com.acme</groupId>
  <artifactId>order-service</artifactId>
  <version>1.2.3</version>
  <dependencies>
    <dependency>
      <groupId>org.apache.struts</groupId>
      <artifactId>struts-core</artifactId>
      <version>1.3.10</version>
    </dependency>
    <dependency>
      <groupId>junit</groupId>
      <artifactId>junit</artifactId>
      <version>4.13</version>
      <scope>test</scope>
      <optional>true</optional>
    </dependency>
  </dependencies>
</project>`

	artifact, err := ParseMavenPOM(pom)
	if err != nil {
		t.Fatalf("ParseMavenPOM returned error: %v", err)
	}
	if artifact.Coordinates() != "com.acme:order-service:1.2.3" {
		t.Errorf("Coordinates() = %q", artifact.Coordinates())
	}
	if len(artifact.Dependencies) != 2 {
		t.Fatalf("got %d dependencies, want 2", len(artifact.Dependencies))
	}
	if artifact.Dependencies[0].Scope != "compile" {
		t.Errorf("dep[0].Scope = %q, want default compile", artifact.Dependencies[0].Scope)
	}
	if artifact.Dependencies[1].Scope != "test" || !artifact.Dependencies[1].Optional {
		t.Errorf("dep[1] = %+v, want scope=test optional=true", artifact.Dependencies[1])
	}

	f := artifact.ToFinding("pom.xml", "chunk-11")
	if f.Identity != "com.acme:order-service:1.2.3" {
		t.Errorf("Finding.Identity = %q", f.Identity)
	}
	if f.MigrationComplexity != "low" {
		t.Errorf("MigrationComplexity = %q, want low", f.MigrationComplexity)
	}
}

func TestParseMavenPOM_Malformed(t *testing.T) {
	_, err := ParseMavenPOM("<project><groupId>com.acme</groupId>")
	if err == nil {
		t.Error("expected an error for truncated XML")
	}
}
